package server

import (
	"net/http"

	"github.com/berfenger/sensorhub/internal/webhook"

	"github.com/labstack/echo/v4"
)

const webhookTypeJSON = "json"

func (s *Server) WebhooksHandler(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(s.core.Webhooks.Describe()))
}

func (s *Server) SetWebhooksHandler(c echo.Context) error {
	config, ok := param(c, "webhooks")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	if err := s.core.Webhooks.Update(config); err != nil {
		return s.errorResponse(c, err)
	}
	if save, _ := param(c, "save"); save == "1" || save == "true" {
		if err := s.core.Webhooks.Save(); err != nil {
			return s.errorResponse(c, err)
		}
	}
	return c.String(http.StatusOK, "OK")
}

// FireGetHandler sends the JSON object in "parameters" as a query string.
func (s *Server) FireGetHandler(c echo.Context) error {
	id, err := positionParam(c, "webhook")
	if err != nil {
		return s.errorResponse(c, err)
	}
	var params map[string]string
	if raw, ok := param(c, "parameters"); ok && raw != "" {
		if params, err = webhook.ParseParams(raw); err != nil {
			return s.errorResponse(c, err)
		}
	}
	result, err := s.core.Webhooks.FireGet(c.Request().Context(), id, params)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// FirePostHandler sends "parameters" as a JSON body when type is json and url
// encoded otherwise.
func (s *Server) FirePostHandler(c echo.Context) error {
	id, err := positionParam(c, "webhook")
	if err != nil {
		return s.errorResponse(c, err)
	}
	raw, ok := param(c, "parameters")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	var result webhook.Result
	if kind, _ := param(c, "type"); kind == webhookTypeJSON {
		result, err = s.core.Webhooks.FirePostJSON(c.Request().Context(), id, raw)
	} else {
		var params map[string]string
		if params, err = webhook.ParseParams(raw); err != nil {
			return s.errorResponse(c, err)
		}
		result, err = s.core.Webhooks.FirePost(c.Request().Context(), id, params)
	}
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
