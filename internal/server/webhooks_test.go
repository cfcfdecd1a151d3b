package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/berfenger/sensorhub/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookRoutes(t *testing.T) {
	received := make(chan string, 4)
	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r.Method + " " + r.URL.RawQuery + " " + string(body)
		_, _ = w.Write([]byte("ack"))
	}))
	defer hookServer.Close()

	ts := newTestServer(t)
	rec := ts.get("/webhooks/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hooks":[]}`, rec.Body.String())

	hooks := `{"hooks":[{"url":"` + hookServer.URL + `/in"}]}`
	rec = ts.post("/webhooks/", url.Values{"webhooks": {hooks}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ts.store.Exists(webhook.ConfigFile))
	rec = ts.post("/webhooks/", url.Values{"webhooks": {hooks}, "save": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.store.Exists(webhook.ConfigFile))
	assert.Contains(t, ts.get("/webhooks/").Body.String(), `"positionID":0`)

	assert.Equal(t, http.StatusBadRequest, ts.post("/webhooks/", url.Values{"webhooks": {`{"hooks":[{"url":"nope"}]}`}}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.post("/webhooks/", url.Values{}).Code)

	rec = ts.post("/webhooks/get", url.Values{"webhook": {"0"}, "parameters": {`{"state":"on"}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	var result webhook.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, webhook.Result{Code: http.StatusOK, Response: "ack"}, result)
	assert.Equal(t, "GET state=on ", <-received)

	rec = ts.post("/webhooks/post", url.Values{"webhook": {"0"}, "type": {"json"}, "parameters": {`{"level":3}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `POST  {"level":3}`, <-received)

	rec = ts.post("/webhooks/post", url.Values{"webhook": {"0"}, "type": {"form"}, "parameters": {`{"level":3}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST  level=3", <-received)

	assert.Equal(t, http.StatusNotFound, ts.post("/webhooks/get", url.Values{"webhook": {"1"}}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.post("/webhooks/post", url.Values{"webhook": {"0"}}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.post("/webhooks/post", url.Values{"webhook": {"0"}, "parameters": {`{`}}).Code)
}
