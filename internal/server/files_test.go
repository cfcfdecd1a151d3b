package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, dir, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-file", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if dir != "" {
		req.Header.Set(uploadPathHeader, dir)
	}
	return req
}

func TestFileRoutes(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Write("/data/a.csv", "t;v\n"))
	require.NoError(t, ts.store.Write("/data/old/b.csv", "t;v\n1;2\n"))

	rec := ts.get("/list?path=/data")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":["/data/a.csv"]}`, rec.Body.String())
	rec = ts.get("/list?path=/data&depth=1")
	assert.JSONEq(t, `{"files":["/data/a.csv","/data/old/b.csv"]}`, rec.Body.String())
	rec = ts.get("/list?path=/missing")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Folder doesn't exist", rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, ts.get("/list?path=/data&depth=x").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get("/list").Code)

	rec = ts.get("/download?path=/data/old/b.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t;v\n1;2\n", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"b.csv"`)
	assert.Equal(t, http.StatusBadRequest, ts.get("/download?path=/data/none.csv").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get("/download?path=/data").Code)

	rec = ts.post("/delete", url.Values{"path": {"/data/a.csv"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"file":"/data/a.csv"}`, rec.Body.String())
	assert.False(t, ts.store.Exists("/data/a.csv"))
	rec = ts.post("/delete", url.Values{"path": {"/data/a.csv"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File doesn't exist", rec.Body.String())
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(uploadRequest(t, "/www", "index.html", "<html></html>"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "File uploaded", rec.Body.String())
	content, err := ts.store.Read("/www/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", content)

	// the client side name cannot escape the target folder
	rec = ts.do(uploadRequest(t, "/www", "../settings/x.json", "{}"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, ts.store.Exists("/www/x.json"))
	assert.False(t, ts.store.Exists("/settings/x.json"))

	assert.Equal(t, http.StatusBadRequest, ts.do(uploadRequest(t, "", "a.txt", "a")).Code)

	req := httptest.NewRequest(http.MethodPost, "/upload-file", nil)
	req.Header.Set(uploadPathHeader, "/www")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

func TestFreeSpace(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.get("/freeSpace")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Space uint64 `json:"space"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Greater(t, body.Space, uint64(0))
	assert.LessOrEqual(t, body.Space, uint64(storage.MemoryCapacity))
}

func TestRebootAndReset(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Write("/settings/sig/keep.json", "{}"))

	rec := ts.do(httptest.NewRequest(http.MethodPut, "/reboot", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, []domain.Event{domain.EventRebooting}, *ts.events)
	assert.Equal(t, 1, *ts.restarts)
	assert.True(t, ts.store.Exists("/settings/sig/keep.json"))

	rec = ts.do(httptest.NewRequest(http.MethodPut, "/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.Event{domain.EventRebooting, domain.EventRebooting}, *ts.events)
	assert.Equal(t, 2, *ts.restarts)
	assert.False(t, ts.store.Exists("/settings/sig/keep.json"))

	assert.Equal(t, http.StatusMethodNotAllowed, ts.get("/reboot").Code)
}
