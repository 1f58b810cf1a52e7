package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-finance/engine/internal/modules/channels"
)

type recordingExporter struct {
	names []string
	err   error
}

func (e *recordingExporter) Export(_ context.Context, names []string) error {
	e.names = names
	return e.err
}

func (e *recordingExporter) Destination() string {
	return "memory://unresolved"
}

func setupHandler(exporter channels.Exporter) *Handler {
	return setupHandlerWithDir(exporter, "")
}

func setupHandlerWithDir(exporter channels.Exporter, exportDir string) *Handler {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	resolver := channels.NewResolver(channels.StaticSource{
		{Code: "41114", Name: "United Nations Development Programme", EnAcronym: "UNDP", FrAcronym: "PNUD"},
		{Code: "44002", Name: "International Development Association", EnAcronym: "IDA", FrAcronym: "AID"},
	}, logger)
	return NewHandler(resolver, exporter, exportDir, logger)
}

func setupRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response, "metadata")
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestHandleResolve(t *testing.T) {
	router := setupRouter(setupHandler(nil))

	w := doRequest(t, router, "POST", "/channels/resolve", ResolveRequest{Name: "PNUD"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	data := decodeData(t, w)
	assert.Equal(t, "41114", data["code"])
	assert.Equal(t, "direct", data["tier"])
	assert.Equal(t, true, data["resolved"])
	assert.Equal(t, "United Nations Development Programme", data["name"])
}

func TestHandleResolve_BadRequest(t *testing.T) {
	router := setupRouter(setupHandler(nil))

	w := doRequest(t, router, "POST", "/channels/resolve", ResolveRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/channels/resolve", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResolveBulk(t *testing.T) {
	router := setupRouter(setupHandler(nil))

	w := doRequest(t, router, "POST", "/channels/resolve-bulk", ResolveBulkRequest{
		Names: []string{"UNDP", "IDA", "UNDP", "Nowhere Institute"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, float64(3), data["distinct"])
	assert.Equal(t, float64(2), data["resolved"])
	assert.Equal(t, float64(1), data["unresolved"])

	results, ok := data["results"].(map[string]interface{})
	require.True(t, ok)
	ida, ok := results["IDA"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "44002", ida["code"])
}

func TestHandleGetUnresolved(t *testing.T) {
	router := setupRouter(setupHandler(nil))
	doRequest(t, router, "POST", "/channels/resolve-bulk", ResolveBulkRequest{Names: []string{"Zeta Fund", "Alpha Trust", "UNDP"}})

	w := doRequest(t, router, "GET", "/channels/unresolved", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["count"])
	assert.Equal(t, []interface{}{"Alpha Trust", "Zeta Fund"}, data["names"])
}

func TestHandleExportUnresolved(t *testing.T) {
	t.Run("to file path", func(t *testing.T) {
		dir := t.TempDir()
		router := setupRouter(setupHandlerWithDir(nil, dir))
		doRequest(t, router, "POST", "/channels/resolve", ResolveRequest{Name: "Nowhere Institute"})

		w := doRequest(t, router, "POST", "/channels/unresolved/export", ExportRequest{Path: "curation/unresolved.csv"})
		assert.Equal(t, http.StatusOK, w.Code)

		path := filepath.Join(dir, "curation", "unresolved.csv")
		data := decodeData(t, w)
		assert.Equal(t, path, data["destination"])
		assert.Equal(t, float64(1), data["count"])
		assert.FileExists(t, path)

		// Absolute paths inside the export directory are accepted
		inside := filepath.Join(dir, "again.csv")
		w = doRequest(t, router, "POST", "/channels/unresolved/export", ExportRequest{Path: inside})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.FileExists(t, inside)
	})

	t.Run("path outside export directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "exports")
		outside := filepath.Join(filepath.Dir(dir), "elsewhere", "overwritten.csv")
		router := setupRouter(setupHandlerWithDir(nil, dir))
		doRequest(t, router, "POST", "/channels/resolve", ResolveRequest{Name: "Nowhere Institute"})

		for _, path := range []string{outside, "../elsewhere/overwritten.csv", "a/../../x.csv", "."} {
			w := doRequest(t, router, "POST", "/channels/unresolved/export", ExportRequest{Path: path})
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
		assert.NoFileExists(t, outside)
		assert.NoDirExists(t, filepath.Join(filepath.Dir(dir), "elsewhere"))
	})

	t.Run("file exports disabled", func(t *testing.T) {
		router := setupRouter(setupHandler(nil))
		w := doRequest(t, router, "POST", "/channels/unresolved/export", ExportRequest{Path: "unresolved.csv"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("to configured exporter", func(t *testing.T) {
		exporter := &recordingExporter{}
		router := setupRouter(setupHandler(exporter))
		doRequest(t, router, "POST", "/channels/resolve", ResolveRequest{Name: "Nowhere Institute"})

		w := doRequest(t, router, "POST", "/channels/unresolved/export", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"Nowhere Institute"}, exporter.names)

		data := decodeData(t, w)
		assert.Equal(t, "memory://unresolved", data["destination"])
	})

	t.Run("no destination", func(t *testing.T) {
		router := setupRouter(setupHandler(nil))
		w := doRequest(t, router, "POST", "/channels/unresolved/export", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("exporter failure", func(t *testing.T) {
		router := setupRouter(setupHandler(&recordingExporter{err: errors.New("offline")}))
		w := doRequest(t, router, "POST", "/channels/unresolved/export", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleInvalidate(t *testing.T) {
	router := setupRouter(setupHandler(nil))

	w := doRequest(t, router, "POST", "/channels/invalidate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["channels"])
	assert.NotEmpty(t, data["built_at"])
}
