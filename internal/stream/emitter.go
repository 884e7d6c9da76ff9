// Package stream encodes search progress as Server-Sent Events.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/logx"
)

const (
	EventStatus   = "status"
	EventCategory = "category"
	EventSummary  = "summary"
	EventDone     = "done"
	EventError    = "error"
)

// ErrTerminated is returned for frames written after done or error.
var ErrTerminated = errors.New("stream: already terminated")

type StatusEvent struct {
	Text string `json:"text"`
}

type CategoryEvent struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
	SortOrder   int              `json:"sortOrder"`
	Products    []domain.Product `json:"products"`
}

type SummaryEvent struct {
	Content          string                  `json:"content"`
	Recommendations  []domain.Recommendation `json:"recommendations"`
	FollowUpQuestion *string                 `json:"followUpQuestion"`
	FollowUpOptions  []string                `json:"followUpOptions"`
}

// CategoryRef is the per-category entry of the done frame.
type CategoryRef struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	SortOrder    int    `json:"sortOrder"`
	ProductCount int    `json:"productCount"`
}

type DoneEvent struct {
	ConversationID string                  `json:"conversationId"`
	MessageID      string                  `json:"messageId"`
	Categories     []CategoryRef           `json:"categories"`
	RateLimit      *domain.RateLimitStatus `json:"rateLimit,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type flusher interface {
	Flush()
}

type errFlusher interface {
	Flush() error
}

// Emitter writes one frame per event and flushes after each. It is safe for
// concurrent use. After a done or error frame every further frame is dropped.
// A failed write is logged once; the caller keeps running.
type Emitter struct {
	mu         sync.Mutex
	w          io.Writer
	terminated bool
	writeErr   error
	frames     int
	started    time.Time
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, started: time.Now()}
}

// Emit encodes payload as JSON and writes it as a named frame.
func (e *Emitter) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", event, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminated {
		return ErrTerminated
	}
	if event == EventDone || event == EventError {
		e.terminated = true
	}
	if e.writeErr != nil {
		return e.writeErr
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		e.fail(err)
		return e.writeErr
	}
	switch f := e.w.(type) {
	case flusher:
		f.Flush()
	case errFlusher:
		if err := f.Flush(); err != nil {
			e.fail(err)
			return e.writeErr
		}
	}
	e.frames++
	return nil
}

func (e *Emitter) fail(err error) {
	e.writeErr = fmt.Errorf("stream: write: %w", err)
	logx.Warn().Err(err).Int("frames_written", e.frames).Dur("elapsed", time.Since(e.started)).
		Msg("client stream write failed, continuing without client")
}

func (e *Emitter) Status(text string) error {
	return e.Emit(EventStatus, StatusEvent{Text: text})
}

func (e *Emitter) Category(ev CategoryEvent) error {
	if ev.Products == nil {
		ev.Products = []domain.Product{}
	}
	return e.Emit(EventCategory, ev)
}

func (e *Emitter) Summary(ev SummaryEvent) error {
	if ev.Recommendations == nil {
		ev.Recommendations = []domain.Recommendation{}
	}
	if ev.FollowUpOptions == nil {
		ev.FollowUpOptions = []string{}
	}
	return e.Emit(EventSummary, ev)
}

func (e *Emitter) Done(ev DoneEvent) error {
	if ev.Categories == nil {
		ev.Categories = []CategoryRef{}
	}
	return e.Emit(EventDone, ev)
}

func (e *Emitter) Error(message string) error {
	return e.Emit(EventError, ErrorEvent{Message: message})
}

// Terminated reports whether a done or error frame has been accepted.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeErr
}
