// Package streamclient consumes the streaming search endpoint. It works over
// transports that only expose the cumulative response body, rebuilding frames
// incrementally and folding them into one Result.
package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout = 120 * time.Second

	eventStatus   = "status"
	eventCategory = "category"
	eventSummary  = "summary"
	eventDone     = "done"
	eventError    = "error"
)

type Client struct {
	baseURL   string
	transport Transport
	timeout   time.Duration
	headers   http.Header
}

type Option func(*Client)

func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUser authenticates as a signed-in user.
func WithUser(userID, token string) Option {
	return func(c *Client) {
		c.headers.Set("X-User-Id", userID)
		c.headers.Set("Authorization", "Bearer "+token)
	}
}

// WithAnonymousID identifies a guest.
func WithAnonymousID(id string) Option {
	return func(c *Client) {
		c.headers.Set("X-Anonymous-Id", id)
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("streamclient: base URL must not be empty")
	}
	c := &Client{
		baseURL:   baseURL,
		transport: &HTTPTransport{},
		timeout:   DefaultTimeout,
		headers:   http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		return nil, errors.New("streamclient: transport must not be nil")
	}
	if c.timeout <= 0 {
		return nil, errors.New("streamclient: timeout must be positive")
	}
	return c, nil
}

// Search posts req and blocks until the stream ends. Handlers run on the
// calling goroutine in frame order. A partial Result is returned alongside
// StreamError and ErrIncompleteStream.
func (c *Client) Search(ctx context.Context, req Request, h Handlers) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("streamclient: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("streamclient: build request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if httpReq.Header.Get("X-Correlation-Id") == "" {
		httpReq.Header.Set("X-Correlation-Id", uuid.NewString())
	}

	acc := &accumulator{handlers: h, result: &Result{}}
	reader := &FrameReader{}
	resp, err := c.transport.Do(ctx, httpReq, func(buffer []byte) {
		acc.apply(reader.Advance(buffer))
	})
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return acc.result, ErrTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return acc.result, ctxErr
		}
		return acc.result, &NetworkError{Err: err}
	}

	if !isEventStream(resp.Header) {
		return nil, decodeAPIError(resp)
	}

	acc.apply(reader.Finish())
	switch {
	case acc.streamErr != nil:
		return acc.result, acc.streamErr
	case !acc.done:
		return acc.result, ErrIncompleteStream
	}
	return acc.result, nil
}

func isEventStream(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}

func decodeAPIError(resp *TransportResponse) error {
	apiErr := &APIError{}
	if err := json.Unmarshal(resp.Body, apiErr); err != nil || (apiErr.Message == "" && apiErr.ErrorCode == "") {
		apiErr = &APIError{Message: strings.TrimSpace(string(resp.Body))}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// accumulator dispatches frames to handlers and folds them into a Result.
// Frames after the first terminal frame are ignored.
type accumulator struct {
	handlers  Handlers
	result    *Result
	done      bool
	streamErr *StreamError
}

func (a *accumulator) terminated() bool {
	return a.done || a.streamErr != nil
}

func (a *accumulator) apply(frames []Frame) {
	for _, f := range frames {
		if a.terminated() {
			return
		}
		a.applyOne(f)
	}
}

func (a *accumulator) applyOne(f Frame) {
	switch f.Event {
	case eventStatus:
		var ev struct {
			Text string `json:"text"`
		}
		if json.Unmarshal([]byte(f.Data), &ev) != nil {
			return
		}
		a.result.Statuses = append(a.result.Statuses, ev.Text)
		if a.handlers.OnStatus != nil {
			a.handlers.OnStatus(ev.Text)
		}
	case eventCategory:
		var ev Category
		if json.Unmarshal([]byte(f.Data), &ev) != nil {
			return
		}
		a.result.Categories = append(a.result.Categories, ev)
		if a.handlers.OnCategory != nil {
			a.handlers.OnCategory(ev)
		}
	case eventSummary:
		var ev Summary
		if json.Unmarshal([]byte(f.Data), &ev) != nil {
			return
		}
		a.result.Summary = &ev
		if a.handlers.OnSummary != nil {
			a.handlers.OnSummary(ev)
		}
	case eventDone:
		var ev Done
		if json.Unmarshal([]byte(f.Data), &ev) != nil {
			return
		}
		a.done = true
		a.result.ConversationID = ev.ConversationID
		a.result.MessageID = ev.MessageID
		a.result.Refs = ev.Categories
		a.result.RateLimit = ev.RateLimit
		if a.handlers.OnDone != nil {
			a.handlers.OnDone(ev)
		}
	case eventError:
		var ev struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(f.Data), &ev) != nil || ev.Message == "" {
			ev.Message = "unknown error"
		}
		a.streamErr = &StreamError{Message: ev.Message}
		if a.handlers.OnError != nil {
			a.handlers.OnError(ev.Message)
		}
	}
}

// Pending is an in-flight Search started with Start.
type Pending struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
	err    error
}

// Start runs Search in the background. Handlers are invoked from that
// goroutine.
func (c *Client) Start(ctx context.Context, req Request, h Handlers) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer cancel()
		p.result, p.err = c.Search(ctx, req, h)
	}()
	return p
}

// Wait blocks until the search finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the search has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Cancel abandons the local request. The server keeps running the search
// and persists its outcome.
func (p *Pending) Cancel() {
	p.cancel()
}
