package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"

	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/observability"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/resilience"
)

const (
	// DefaultAPIURL is the Web API base.
	DefaultAPIURL = "https://slack.com/api"
	// DefaultPageLimit caps how many pages one paginated command may fetch.
	DefaultPageLimit = 9001

	maxErrorBody = 512
)

// Caller issues one Web API command.
type Caller interface {
	Call(ctx context.Context, command string, params map[string]string) (Response, error)
}

// Response is a decoded Web API reply.
type Response map[string]any

// OK reports the "ok" flag.
func (r Response) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

// String returns a string field, or "" when absent.
func (r Response) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Has reports whether key is present.
func (r Response) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Decode re-encodes one field into v.
func (r Response) Decode(key string, v any) error {
	raw, ok := r[key]
	if !ok {
		return fmt.Errorf("response has no %q field", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %q: %w", key, err)
	}
	return nil
}

func (r Response) metadata() slack.ResponseMetadata {
	var meta slack.ResponseMetadata
	if r.Has("response_metadata") {
		_ = r.Decode("response_metadata", &meta)
	}
	return meta
}

// NextCursor returns the pagination cursor, or "" when exhausted.
func (r Response) NextCursor() string {
	return r.metadata().Cursor
}

// Warnings returns the messages attached to the response metadata.
func (r Response) Warnings() []string {
	return r.metadata().Messages
}

// APIClient posts Web API commands over HTTPS.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      RetryPolicy
	breaker    *resilience.CircuitBreaker
	metrics    *observability.Metrics
	logger     logger.Logger
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.httpClient = c }
}

// WithAPIURL overrides the API base URL.
func WithAPIURL(u string) APIOption {
	return func(a *APIClient) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) APIOption {
	return func(a *APIClient) { a.retry = p }
}

// WithCircuitBreaker guards HTTP round trips with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) APIOption {
	return func(a *APIClient) { a.breaker = cb }
}

// WithAPIMetrics records call metrics.
func WithAPIMetrics(m *observability.Metrics) APIOption {
	return func(a *APIClient) { a.metrics = m }
}

// WithAPILogger sets the logger.
func WithAPILogger(l logger.Logger) APIOption {
	return func(a *APIClient) { a.logger = l }
}

// NewAPIClient builds a client for the given bot token.
func NewAPIClient(token string, opts ...APIOption) (*APIClient, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &domainerrors.ConfigError{Field: "token"}
	}
	c := &APIClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultAPIURL,
		token:      token,
		retry:      DefaultRetryPolicy(),
		logger:     logger.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("slack-api", resilience.Config{},
			resilience.WithFailurePredicate(domainerrors.IsTransientError))
	}
	return c, nil
}

// Call posts command with params and returns the decoded reply. Replies
// with ok=false come back as *errors.ResponseError.
func (c *APIClient) Call(ctx context.Context, command string, params map[string]string) (Response, error) {
	start := time.Now()

	var resp Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		err := c.breaker.Execute(ctx, func() error {
			var err error
			resp, err = c.post(ctx, command, params)
			return err
		})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return newResponseError(command, resp)
		}
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		c.metrics.RecordAPIRetry(ctx, command)
		c.logger.Warn("api call failed, retrying",
			"command", command,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
	})

	c.metrics.RecordAPICall(ctx, command, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *APIClient) post(ctx context.Context, command string, params map[string]string) (Response, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+command, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domainerrors.NewPermanentError("building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, categorizeTransportError(command, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domainerrors.NewTransientError("reading response", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, domainerrors.NewTransientError(command+": rate limited",
			&slack.RateLimitedError{RetryAfter: retryAfter(httpResp)})
	case httpResp.StatusCode >= 500:
		return nil, domainerrors.NewTransientError(command+": server error",
			slack.StatusCodeError{Code: httpResp.StatusCode, Status: httpResp.Status})
	case httpResp.StatusCode >= 300:
		return nil, domainerrors.NewPermanentError(command+": unexpected status "+truncate(body),
			slack.StatusCodeError{Code: httpResp.StatusCode, Status: httpResp.Status})
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainerrors.NewPermanentError(command+": decoding response "+truncate(body), err)
	}
	return resp, nil
}

func categorizeTransportError(command string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domainerrors.NewTransientError(command+": network error", err)
	}
	return domainerrors.NewTransientError(command+": request failed", err)
}

func retryAfter(resp *http.Response) time.Duration {
	var secs int
	if _, err := fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &secs); err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}

// CallPaginated issues command repeatedly, following next_cursor until a
// page returns none or pageLimit pages have been fetched. Array fields from later pages
// are appended onto the first, object fields are merged, scalars replaced.
func CallPaginated(ctx context.Context, caller Caller, pageLimit int, command string, params map[string]string) (Response, error) {
	if pageLimit < 1 {
		pageLimit = 1
	}

	page := make(map[string]string, len(params)+1)
	for k, v := range params {
		page[k] = v
	}

	resp, err := caller.Call(ctx, command, page)
	if err != nil {
		return nil, err
	}

	cursor := resp.NextCursor()
	for fetched := 1; fetched < pageLimit && cursor != ""; fetched++ {
		page["cursor"] = cursor
		next, err := caller.Call(ctx, command, page)
		if err != nil {
			return nil, err
		}
		// a page without metadata is the last one
		cursor = next.NextCursor()
		mergePage(resp, next)
		setNextCursor(resp, cursor)
	}
	return resp, nil
}

func setNextCursor(resp Response, cursor string) {
	meta, ok := resp["response_metadata"].(map[string]any)
	if !ok {
		if cursor == "" {
			return
		}
		meta = make(map[string]any)
		resp["response_metadata"] = meta
	}
	meta["next_cursor"] = cursor
}

func mergePage(into, page Response) {
	for key, value := range page {
		switch v := value.(type) {
		case []any:
			if existing, ok := into[key].([]any); ok {
				into[key] = append(existing, v...)
				continue
			}
			into[key] = v
		case map[string]any:
			existing, ok := into[key].(map[string]any)
			if !ok {
				into[key] = v
				continue
			}
			for k, inner := range v {
				existing[k] = inner
			}
		default:
			into[key] = v
		}
	}
}
