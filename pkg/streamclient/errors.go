package streamclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrIncompleteStream means the body ended before a done or error frame.
	ErrIncompleteStream = errors.New("streamclient: stream ended without a terminal event")
	// ErrTimeout means the client-side deadline elapsed first.
	ErrTimeout = errors.New("streamclient: request timed out")
)

// APIError is a JSON rejection returned before the stream started.
type APIError struct {
	StatusCode int        `json:"-"`
	ErrorCode  string     `json:"error"`
	Message    string     `json:"message"`
	Code       string     `json:"code,omitempty"`
	Remaining  *int       `json:"remaining,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("streamclient: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("streamclient: status %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
}

// RateLimited reports whether the request was rejected by the search quota.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// StreamError carries the message of an error frame.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "streamclient: server error: " + e.Message
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "streamclient: network: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
