package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	level string
	msg   string
	kv    map[string]any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (c *captureLogger) record(level, msg string, kv []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fields[key] = kv[i+1]
	}
	c.lines = append(c.lines, logLine{level: level, msg: msg, kv: fields})
}

func (c *captureLogger) Debug(msg string, kv ...any) { c.record("debug", msg, kv) }
func (c *captureLogger) Info(msg string, kv ...any)  { c.record("info", msg, kv) }
func (c *captureLogger) Warn(msg string, kv ...any)  { c.record("warn", msg, kv) }
func (c *captureLogger) Error(msg string, kv ...any) { c.record("error", msg, kv) }

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestRecovery_RespondsWithRequestID(t *testing.T) {
	log := &captureLogger{}
	h := Recovery(log)(RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/-/reload", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-7", body["request_id"])

	require.Len(t, log.lines, 1)
	assert.Equal(t, "error", log.lines[0].level)
	assert.Equal(t, "panic recovered", log.lines[0].msg)
	assert.Equal(t, "req-7", log.lines[0].kv["request_id"])
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantLevel  string
		wantStream bool
	}{
		{name: "health probe", path: "/health", wantLevel: "debug"},
		{name: "readiness probe", path: "/ready", wantLevel: "debug"},
		{name: "metrics scrape", path: "/metrics", wantLevel: "debug"},
		{name: "reload", path: "/-/reload", wantLevel: "info", wantStream: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &captureLogger{}
			h := Logging(log, func() bool { return true })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tt.path, nil))

			require.Len(t, log.lines, 1)
			line := log.lines[0]
			assert.Equal(t, tt.wantLevel, line.level)
			assert.Equal(t, http.StatusAccepted, line.kv["status"])
			if tt.wantStream {
				assert.Equal(t, true, line.kv["stream_connected"])
			} else {
				assert.NotContains(t, line.kv, "stream_connected")
			}
		})
	}
}

func TestLogging_NilStreamState(t *testing.T) {
	log := &captureLogger{}
	h := Logging(log, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/-/reload", nil))

	require.Len(t, log.lines, 1)
	assert.Equal(t, "info", log.lines[0].level)
	assert.NotContains(t, log.lines[0].kv, "stream_connected")
}

func TestObservability_PassesThrough(t *testing.T) {
	h := Observability(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}
