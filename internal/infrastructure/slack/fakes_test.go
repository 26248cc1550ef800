package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

func mustResponse(t *testing.T, raw string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

type apiCall struct {
	command string
	params  map[string]string
}

// fakeCaller answers commands from canned handlers and records every call.
type fakeCaller struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]string) (Response, error)
	calls    []apiCall
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: make(map[string]func(map[string]string) (Response, error))}
}

func (f *fakeCaller) handle(command string, fn func(params map[string]string) (Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[command] = fn
}

func (f *fakeCaller) reply(t *testing.T, command, raw string) {
	resp := mustResponse(t, raw)
	f.handle(command, func(map[string]string) (Response, error) {
		// each call gets its own copy so pagination merges don't leak
		var copied Response
		data, _ := json.Marshal(resp)
		_ = json.Unmarshal(data, &copied)
		return copied, nil
	})
}

func (f *fakeCaller) Call(_ context.Context, command string, params map[string]string) (Response, error) {
	f.mu.Lock()
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	f.calls = append(f.calls, apiCall{command: command, params: copied})
	fn := f.handlers[command]
	f.mu.Unlock()

	if fn == nil {
		return nil, newResponseError(command, Response{"ok": false, "error": "unknown_method"})
	}
	resp, err := fn(params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, newResponseError(command, resp)
	}
	return resp, nil
}

func (f *fakeCaller) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.command == command {
			n++
		}
	}
	return n
}

func (f *fakeCaller) callsTo(command string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.command == command {
			out = append(out, c)
		}
	}
	return out
}

// fakeDriver replays scripted frames then reports end of stream. When hold
// is set it runs hold and waits for cancellation instead.
type fakeDriver struct {
	frames []string
	hold   func()

	onOpen    func()
	onMessage func(entity.Frame) error
	onError   func(error)

	url       string
	connected bool
	written   []any
}

func (d *fakeDriver) OnOpen(fn func())                      { d.onOpen = fn }
func (d *fakeDriver) OnMessage(fn func(entity.Frame) error) { d.onMessage = fn }
func (d *fakeDriver) OnError(fn func(error))                { d.onError = fn }

func (d *fakeDriver) Connect(_ context.Context, url string) error {
	if !strings.HasPrefix(url, "wss://") {
		return domainerrors.ErrInsecureURL
	}
	if d.url != "" {
		return domainerrors.ErrAlreadyConnected
	}
	d.url = url
	d.connected = true
	if d.onOpen != nil {
		d.onOpen()
	}
	return nil
}

func (d *fakeDriver) ReadLoop(ctx context.Context) error {
	for _, raw := range d.frames {
		frame, err := entity.ParseFrame([]byte(raw))
		if err != nil {
			continue
		}
		if err := d.onMessage(frame); err != nil {
			d.connected = false
			return err
		}
	}
	if d.hold != nil {
		d.hold()
		<-ctx.Done()
		d.connected = false
		return ctx.Err()
	}
	d.connected = false
	return fmt.Errorf("%w: scripted close", domainerrors.ErrEndOfStream)
}

func (d *fakeDriver) Write(v any) error {
	if !d.connected {
		return domainerrors.ErrNotListening
	}
	d.written = append(d.written, v)
	return nil
}

func (d *fakeDriver) Ping() error {
	if !d.connected {
		return domainerrors.ErrNotListening
	}
	return nil
}

func (d *fakeDriver) Connected() bool { return d.connected }
func (d *fakeDriver) Close() error    { d.connected = false; return nil }

// driverQueue hands out scripted drivers in order.
type driverQueue struct {
	drivers []*fakeDriver
	next    int
}

func (q *driverQueue) factory() StreamDriver {
	if q.next >= len(q.drivers) {
		return &fakeDriver{hold: func() {}}
	}
	d := q.drivers[q.next]
	q.next++
	return d
}

// recordSleep captures reconnect waits without waiting.
type recordSleep struct {
	waits []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}
