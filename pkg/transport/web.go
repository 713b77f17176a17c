package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/tidwall/sjson"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for each request
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// WebTransport streams skill events over an HTTP POST answered with
// text/event-stream
type WebTransport struct {
	url    string
	client *http.Client
	tokens TokenSource
}

// WebOption configures a WebTransport
type WebOption func(*WebTransport)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) WebOption {
	return func(w *WebTransport) {
		w.client = c
	}
}

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(ts TokenSource) WebOption {
	return func(w *WebTransport) {
		w.tokens = ts
	}
}

// NewWebTransport creates the web transport from its config section
func NewWebTransport(cfg config.WebConfig, opts ...WebOption) *WebTransport {
	w := &WebTransport{
		url:    strings.TrimRight(cfg.BaseURL, "/") + cfg.Endpoint,
		client: newStreamingClient(cfg.Timeout),
		tokens: StaticToken(cfg.Token),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// newStreamingClient bounds connection setup and response headers but never
// the body, which stays open for the whole stream
func newStreamingClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return &http.Client{}
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}
}

func (w *WebTransport) Name() string {
	return config.RuntimeWeb
}

// Open posts task and reads the event stream on a new goroutine
func (w *WebTransport) Open(ctx context.Context, task skill.InvokeRequest, h stream.Handler) (*Handle, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	token, err := w.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get auth token: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	handle := NewHandle(uuid.NewString(), cancel)
	logger.Debug("Opening web stream %s: POST %s", handle.ID, w.url)

	go w.read(req, handle, h)
	return handle, nil
}

func (w *WebTransport) read(req *http.Request, handle *Handle, h stream.Handler) {
	defer handle.finish()

	resp, err := w.client.Do(req)
	if err != nil {
		handle.deliver(func() { h.OnError(fmt.Errorf("skill request: %w", err)) })
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := skill.DecodeError(raw, resp.StatusCode)
		logger.Warn("Web stream %s rejected: %v", handle.ID, serr)
		handle.deliver(func() { h.OnError(serr) })
		return
	}

	handle.deliver(h.OnStart)

	reader := skill.NewSSEReader(resp.Body)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			handle.deliver(h.OnCompleted)
			return
		}
		if err != nil {
			handle.deliver(func() { h.OnError(fmt.Errorf("read skill stream: %w", err)) })
			return
		}

		if string(frame.Data) == "[DONE]" {
			handle.deliver(h.OnCompleted)
			return
		}

		ev, ok := decodeFrame(frame)
		if !ok {
			logger.Debug("Web stream %s: dropping undecodable frame %q", handle.ID, frame.Data)
			continue
		}

		terminal := false
		if !handle.deliver(func() { terminal = stream.Dispatch(h, ev) }) || terminal {
			return
		}
	}
}

// decodeFrame decodes a frame's data, falling back to the SSE event name as
// the envelope type when the data is a bare message payload
func decodeFrame(frame skill.SSEFrame) (skill.Event, bool) {
	if ev, ok := skill.Decode(frame.Data); ok {
		return ev, true
	}
	if frame.Event == "" {
		return skill.Event{}, false
	}
	envelope, err := sjson.SetBytes([]byte(`{}`), "type", frame.Event)
	if err != nil {
		return skill.Event{}, false
	}
	envelope, err = sjson.SetRawBytes(envelope, "message", frame.Data)
	if err != nil {
		return skill.Event{}, false
	}
	return skill.DecodeEnvelope(envelope)
}

// Close cancels the request. Events still in flight are dropped.
func (w *WebTransport) Close(handle *Handle) error {
	if handle == nil || !handle.markClosed() {
		return nil
	}
	logger.Debug("Closing web stream %s", handle.ID)
	handle.cancel()
	return nil
}

var _ Transport = (*WebTransport)(nil)
