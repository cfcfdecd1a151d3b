package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

var errBadRequest = errors.New("bad request data")

type calibrationResponse struct {
	Response domain.CalibrationResult `json:"response"`
	Result   string                   `json:"result"`
	Message  string                   `json:"message"`
}

type statsResponse struct {
	Ticks         uint64   `json:"ticks"`
	Polls         uint64   `json:"polls"`
	FailedPolls   uint64   `json:"failedPolls"`
	QueuedSignals int      `json:"queuedSignals"`
	QueueCapacity int      `json:"queueCapacity"`
	Worker        string   `json:"worker"`
	Tasks         []string `json:"tasks"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	e.GET("/stats", s.StatsHandler)

	e.GET("/sensors/", s.SensorsHandler)
	e.GET("/sensors/config", s.SensorConfigHandler)
	e.POST("/sensors/config", s.SetSensorConfigHandler)
	e.GET("/sensors/measurement", s.MeasurementHandler)
	e.POST("/sensors/calibrate", s.CalibrateHandler)

	e.GET("/signals/", s.ReceiversHandler)
	e.GET("/signals/config", s.ReceiverConfigHandler)
	e.POST("/signals/config", s.SetReceiverConfigHandler)
	e.POST("/signals/add", s.AddSignalHandler)
	e.GET("/signals/execute", s.ExecuteSignalHandler)
	e.POST("/signals/execute", s.ExecuteSignalHandler)

	e.GET("/webhooks/", s.WebhooksHandler)
	e.POST("/webhooks/", s.SetWebhooksHandler)
	e.POST("/webhooks/get", s.FireGetHandler)
	e.POST("/webhooks/post", s.FirePostHandler)

	e.GET("/list", s.ListFilesHandler)
	e.GET("/download", s.DownloadHandler)
	e.POST("/delete", s.DeleteFileHandler)
	e.POST("/upload-file", s.UploadHandler)
	e.GET("/freeSpace", s.FreeSpaceHandler)

	e.PUT("/reset", s.ResetHandler)
	e.PUT("/reboot", s.RebootHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.hubActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version":  versioninfo.Short(),
		"revision": versioninfo.Revision,
	})
}

func (s *Server) StatsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.hubActor, domain.HubStatsRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	stats, ok := res.(domain.HubStatsResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, statsResponse{
		Ticks:         stats.Ticks,
		Polls:         stats.Polls,
		FailedPolls:   stats.FailedPolls,
		QueuedSignals: stats.QueuedSignal,
		QueueCapacity: s.core.Dispatcher.Capacity(),
		Worker:        s.core.Dispatcher.State().String(),
		Tasks:         stats.Tasks,
	})
}

// ResetHandler wipes the stored settings and restarts the hub.
func (s *Server) ResetHandler(c echo.Context) error {
	if err := s.core.Store.Wipe(); err != nil {
		return s.errorResponse(c, err)
	}
	return s.RebootHandler(c)
}

func (s *Server) RebootHandler(c echo.Context) error {
	if err := s.core.Bus.Broadcast(domain.EventRebooting); err != nil {
		s.logger.Warn("server@reboot broadcast failed", zap.Error(err))
	}
	if err := s.core.Restart(); err != nil {
		return s.errorResponse(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

// Sensors

func (s *Server) SensorsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Sensors.DescribeAll())
}

func (s *Server) SensorConfigHandler(c echo.Context) error {
	id, err := positionParam(c, "sensor")
	if err != nil {
		return s.errorResponse(c, err)
	}
	config, err := s.core.Sensors.GetConfig(id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(config))
}

func (s *Server) SetSensorConfigHandler(c echo.Context) error {
	id, err := positionParam(c, "sensor")
	if err != nil {
		return s.errorResponse(c, err)
	}
	config, ok := param(c, "config")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	if err := s.core.Sensors.SetConfig(id, config); err != nil {
		return s.errorResponse(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) MeasurementHandler(c echo.Context) error {
	if _, update := param(c, "update"); update {
		res, err := s.rootContext.RequestFuture(s.hubActor, domain.PollRequest{}, requestTimeout).Result()
		if err != nil {
			return s.errorResponse(c, err)
		}
		response, ok := res.(domain.PollResponse)
		if !ok {
			return c.String(http.StatusInternalServerError, "unexpected response")
		}
		if response.HasResponseError() {
			s.logger.Warn("server@measurement update failed", zap.Error(response.GetResponseError()))
			return c.String(http.StatusInternalServerError, "Could not take measurement")
		}
	}
	return c.JSON(http.StatusOK, s.core.Measurements.Snapshot())
}

func (s *Server) CalibrateHandler(c echo.Context) error {
	id, err := positionParam(c, "sensor")
	if err != nil {
		return s.errorResponse(c, err)
	}
	rawStep, ok := param(c, "step")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	step, err := strconv.Atoi(rawStep)
	if err != nil {
		return s.errorResponse(c, errBadRequest)
	}
	result, message, err := s.core.Measurements.Calibrate(id, step)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, calibrationResponse{
		Response: result,
		Result:   result.String(),
		Message:  message,
	})
}

// Signal receivers

func (s *Server) ReceiversHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Receivers.DescribeAll())
}

func (s *Server) ReceiverConfigHandler(c echo.Context) error {
	id, err := positionParam(c, "receiver")
	if err != nil {
		return s.errorResponse(c, err)
	}
	config, err := s.core.Receivers.GetConfig(id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(config))
}

func (s *Server) SetReceiverConfigHandler(c echo.Context) error {
	id, err := positionParam(c, "receiver")
	if err != nil {
		return s.errorResponse(c, err)
	}
	config, ok := param(c, "config")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	if err := s.core.Receivers.SetConfig(id, config); err != nil {
		return s.errorResponse(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) AddSignalHandler(c echo.Context) error {
	id, err := positionParam(c, "receiver")
	if err != nil {
		return s.errorResponse(c, err)
	}
	payload, _ := param(c, "payload")
	if rawSignal, ok := param(c, "id"); ok {
		signal, err := strconv.ParseUint(rawSignal, 10, 32)
		if err != nil {
			return s.errorResponse(c, errBadRequest)
		}
		err = s.core.Dispatcher.Enqueue(id, uint32(signal), payload)
		if err != nil {
			return s.errorResponse(c, err)
		}
	} else if name, ok := param(c, "name"); ok {
		if err := s.core.Dispatcher.EnqueueByName(id, name, payload); err != nil {
			return s.errorResponse(c, err)
		}
	} else {
		return s.errorResponse(c, errBadRequest)
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) ExecuteSignalHandler(c echo.Context) error {
	id, err := positionParam(c, "receiver")
	if err != nil {
		return s.errorResponse(c, err)
	}
	payload, _ := param(c, "payload")
	var response domain.Response
	if rawSignal, ok := param(c, "id"); ok {
		signal, err := strconv.ParseUint(rawSignal, 10, 32)
		if err != nil {
			return s.errorResponse(c, errBadRequest)
		}
		response, err = s.core.Dispatcher.DispatchImmediate(id, uint32(signal), payload)
		if err != nil {
			return s.errorResponse(c, err)
		}
	} else if name, ok := param(c, "name"); ok {
		response, err = s.core.Dispatcher.DispatchImmediateByName(id, name, payload)
		if err != nil {
			return s.errorResponse(c, err)
		}
	} else {
		return s.errorResponse(c, errBadRequest)
	}
	if response.JSON {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(response.Body))
	}
	return c.String(http.StatusOK, response.Body)
}

func (s *Server) errorResponse(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("server@request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.String(status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSignal):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDeserializationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDispatchFailed):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// param reads a query or form value and reports whether it was present.
func param(c echo.Context, name string) (string, bool) {
	values, err := c.FormParams()
	if err != nil {
		return "", false
	}
	if v, ok := values[name]; ok && len(v) > 0 {
		return v[0], true
	}
	return "", false
}

func positionParam(c echo.Context, name string) (domain.PositionID, error) {
	raw, ok := param(c, name)
	if !ok {
		return 0, errBadRequest
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadRequest
	}
	return domain.PositionID(id), nil
}
