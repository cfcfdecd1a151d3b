package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	method      string
	query       string
	body        string
	contentType string
	token       string
}

func newHookServer(t *testing.T) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			method:      r.Method,
			query:       r.URL.RawQuery,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			token:       r.Header.Get("X-Token"),
		}
		if r.URL.Path == "/teapot" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestManagerConfig(t *testing.T) {
	store := storage.NewMemoryStore(zap.NewNop())
	m := NewManager(store, time.Second, 0, zap.NewNop())
	require.NoError(t, m.Begin())
	assert.JSONEq(t, `{"hooks":[]}`, m.Describe())

	require.NoError(t, m.Update(`{"hooks":[{"url":"http://example.com/a","headers":{"X-Token":"t"}},{"url":"https://example.com/b"}]}`))
	assert.JSONEq(t, `{"hooks":[
		{"positionID":0,"url":"http://example.com/a","headers":{"X-Token":"t"}},
		{"positionID":1,"url":"https://example.com/b"}]}`, m.Describe())
	require.NoError(t, m.Save())

	assert.ErrorIs(t, m.Update(`{"hooks":[{"url":"ftp://x"}]}`), domain.ErrDeserializationFailed)
	assert.ErrorIs(t, m.Update(`{"hooks":`), domain.ErrDeserializationFailed)
	assert.Contains(t, m.Describe(), "example.com/b")

	reloaded := NewManager(store, time.Second, 0, zap.NewNop())
	require.NoError(t, reloaded.Begin())
	assert.JSONEq(t, m.Describe(), reloaded.Describe())
}

func TestManagerFire(t *testing.T) {
	srv, requests := newHookServer(t)
	m := NewManager(storage.NewMemoryStore(zap.NewNop()), time.Second, 0, zap.NewNop())
	require.NoError(t, m.Update(`{"hooks":[{"url":"`+srv.URL+`/hook","headers":{"X-Token":"secret"}},{"url":"`+srv.URL+`/teapot"}]}`))
	ctx := context.Background()

	res, err := m.FireGet(ctx, 0, map[string]string{"level": "3"})
	require.NoError(t, err)
	assert.Equal(t, Result{Code: http.StatusOK, Response: "done"}, res)
	req := <-requests
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "level=3", req.query)
	assert.Equal(t, "secret", req.token)

	_, err = m.FirePost(ctx, 0, map[string]string{"a": "1", "b": "x y"})
	require.NoError(t, err)
	req = <-requests
	assert.Equal(t, "a=1&b=x+y", req.body)
	assert.Equal(t, "application/x-www-form-urlencoded", req.contentType)

	_, err = m.FirePostJSON(ctx, 0, `{"a":1}`)
	require.NoError(t, err)
	req = <-requests
	assert.Equal(t, `{"a":1}`, req.body)
	assert.Equal(t, "application/json", req.contentType)

	_, err = m.FirePostJSON(ctx, 0, `{"a":`)
	assert.ErrorIs(t, err, domain.ErrDeserializationFailed)

	res, err = m.FireGet(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Code: http.StatusTeapot, Response: ResultFail}, res)

	_, err = m.FireGet(ctx, 2, nil)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	_, err = m.FirePost(ctx, -1, nil)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams(`{"name":"pump","level":2,"on":true}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "pump", "level": "2", "on": "true"}, params)

	_, err = ParseParams(`[1]`)
	assert.ErrorIs(t, err, domain.ErrDeserializationFailed)
}
