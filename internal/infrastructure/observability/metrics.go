package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the client's instruments. A nil *Metrics records nothing.
type Metrics struct {
	meter metric.Meter

	// Stream metrics
	FramesReceivedTotal metric.Int64Counter
	ReconnectsTotal     metric.Int64Counter
	HandshakesTotal     metric.Int64Counter
	StreamConnected     metric.Int64UpDownCounter

	// REST metrics
	APICallsTotal   metric.Int64Counter
	APICallDuration metric.Float64Histogram
	APIRetriesTotal metric.Int64Counter

	// Directory cache metrics
	CacheRefreshesTotal metric.Int64Counter

	// Dispatch metrics
	DispatchesTotal     metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
	ListenersRegistered metric.Int64UpDownCounter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates and registers all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	var err error

	m.FramesReceivedTotal, err = meter.Int64Counter(
		"rtm.frames.received.total",
		metric.WithDescription("Total number of frames read from the stream"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rtm_frames_received_total: %w", err)
	}

	m.ReconnectsTotal, err = meter.Int64Counter(
		"rtm.reconnects.total",
		metric.WithDescription("Total number of stream reconnects after end of stream"),
		metric.WithUnit("{reconnects}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rtm_reconnects_total: %w", err)
	}

	m.HandshakesTotal, err = meter.Int64Counter(
		"rtm.handshakes.total",
		metric.WithDescription("Total number of session handshakes"),
		metric.WithUnit("{handshakes}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rtm_handshakes_total: %w", err)
	}

	m.StreamConnected, err = meter.Int64UpDownCounter(
		"rtm.stream.connected",
		metric.WithDescription("Number of open streams"),
		metric.WithUnit("{streams}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rtm_stream_connected: %w", err)
	}

	m.APICallsTotal, err = meter.Int64Counter(
		"api.calls.total",
		metric.WithDescription("Total number of REST commands issued"),
		metric.WithUnit("{calls}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating api_calls_total: %w", err)
	}

	m.APICallDuration, err = meter.Float64Histogram(
		"api.call.duration",
		metric.WithDescription("REST command duration in seconds, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating api_call_duration: %w", err)
	}

	m.APIRetriesTotal, err = meter.Int64Counter(
		"api.retries.total",
		metric.WithDescription("Total number of REST command retries"),
		metric.WithUnit("{retries}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating api_retries_total: %w", err)
	}

	m.CacheRefreshesTotal, err = meter.Int64Counter(
		"cache.refreshes.total",
		metric.WithDescription("Total number of directory refreshes"),
		metric.WithUnit("{refreshes}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache_refreshes_total: %w", err)
	}

	m.DispatchesTotal, err = meter.Int64Counter(
		"session.dispatches.total",
		metric.WithDescription("Total number of messages dispatched to listeners"),
		metric.WithUnit("{messages}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session_dispatches_total: %w", err)
	}

	m.DispatchDuration, err = meter.Float64Histogram(
		"session.dispatch.duration",
		metric.WithDescription("Message dispatch duration in seconds, callback included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session_dispatch_duration: %w", err)
	}

	m.ListenersRegistered, err = meter.Int64UpDownCounter(
		"session.listeners.registered",
		metric.WithDescription("Number of registered listeners"),
		metric.WithUnit("{listeners}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session_listeners_registered: %w", err)
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}

	return m, nil
}

// RecordFrame counts one inbound frame.
func (m *Metrics) RecordFrame(ctx context.Context, frameType string) {
	if m == nil {
		return
	}
	if frameType == "" {
		frameType = "untyped"
	}
	m.FramesReceivedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("frame.type", frameType)))
}

// RecordReconnect counts one reconnect after end of stream.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Add(ctx, 1)
}

// RecordHandshake counts one session handshake.
func (m *Metrics) RecordHandshake(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.HandshakesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordStreamOpen tracks open streams; pass -1 on close.
func (m *Metrics) RecordStreamOpen(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.StreamConnected.Add(ctx, delta)
}

// RecordAPICall records one REST command outcome.
func (m *Metrics) RecordAPICall(ctx context.Context, command string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	)
	m.APICallsTotal.Add(ctx, 1, attrs)
	m.APICallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAPIRetry counts one retried REST command.
func (m *Metrics) RecordAPIRetry(ctx context.Context, command string) {
	if m == nil {
		return
	}
	m.APIRetriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordCacheRefresh counts one directory refresh of the given kind.
func (m *Metrics) RecordCacheRefresh(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.CacheRefreshesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDispatch records one dispatched message.
func (m *Metrics) RecordDispatch(ctx context.Context, matched bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("matched", matched))
	m.DispatchesTotal.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordListeners tracks registered listeners; pass a negative delta on removal.
func (m *Metrics) RecordListeners(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ListenersRegistered.Add(ctx, delta)
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}
