package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/config"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler()

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET returns 200", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "POST returns 405", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	resp := decodeBody(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "timestamp")
	assert.Contains(t, resp, "uptime")
}

func TestReadyHandler(t *testing.T) {
	listening := false
	stream := CheckerFunc(func(context.Context) error {
		if !listening {
			return errors.New("stream not connected")
		}
		return nil
	})

	h := NewReadyHandler()
	h.AddChecker("stream", stream)
	h.AddChecker("config", CheckerFunc(func(context.Context) error { return nil }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, false, resp["ready"])
	checks := resp["checks"].(map[string]any)
	assert.Equal(t, map[string]any{"ready": false, "error": "stream not connected"}, checks["stream"])
	assert.Equal(t, map[string]any{"ready": true}, checks["config"])

	listening = true
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ready"])
}

func TestReadyHandler_NoCheckers(t *testing.T) {
	h := NewReadyHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ready"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ready", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "slacks_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Inc()

	h := NewMetricsHandler(registry)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slacks_test_total 1")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type stubReloader struct{ err error }

func (s stubReloader) TryReload() error { return s.err }

func TestReloadHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		restart bool
	}{
		{name: "applied", status: http.StatusOK},
		{name: "restart required", err: fmt.Errorf("wrapped: %w", config.ErrRequiresRestart), status: http.StatusOK, restart: true},
		{name: "failed", err: errors.New("bad yaml"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewReloadHandler(stubReloader{err: tt.err}, logger.Nop{})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/-/reload", nil))
			assert.Equal(t, tt.status, w.Code)
			resp := decodeBody(t, w)
			if tt.restart {
				assert.Equal(t, true, resp["restart_required"])
			}
		})
	}

	h := NewReloadHandler(stubReloader{}, logger.Nop{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/reload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
