// Package ratelimit enforces the per-subject search quota over a fixed,
// epoch-aligned window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/logx"
)

const (
	ReasonGuestLimit = "guest_limit_reached"
	ReasonUserLimit  = "user_limit_reached"
)

// Store counts admitted requests per subject and window. Increment must be
// atomic with respect to concurrent callers.
type Store interface {
	Count(ctx context.Context, subject string, windowStart time.Time) (int, error)
	Increment(ctx context.Context, subject string, windowStart time.Time, ttl time.Duration) (int, error)
}

// Config holds the quota settings.
type Config struct {
	UserLimit  int
	GuestLimit int
	Window     time.Duration
	Disabled   bool
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	Status  domain.RateLimitStatus
}

// Limiter decides admission before any model work and records usage after a
// successful search. Check and Record are separate calls, so two concurrent
// requests may both be admitted on the last slot.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewLimiter(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	if cfg.UserLimit <= 0 || cfg.GuestLimit <= 0 {
		return nil, errors.New("ratelimit: limits must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}, nil
}

// SubjectKey namespaces a subject by identity type so a guest token can never
// collide with a user id.
func SubjectKey(id domain.Identity) string {
	return id.Type + ":" + id.Subject
}

// WindowStart returns the start of the epoch-aligned window containing t.
func WindowStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}

func (l *Limiter) limitFor(id domain.Identity) (int, string) {
	if id.Authenticated() {
		return l.cfg.UserLimit, ReasonUserLimit
	}
	return l.cfg.GuestLimit, ReasonGuestLimit
}

// Check reports whether the subject may start another search. A failing store
// admits the request.
func (l *Limiter) Check(ctx context.Context, id domain.Identity) (Decision, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return Decision{}, errors.New("ratelimit: subject must not be empty")
	}
	limit, reason := l.limitFor(id)
	start := WindowStart(l.now(), l.cfg.Window)
	status := domain.RateLimitStatus{Limit: limit, Remaining: limit, ResetAt: start.Add(l.cfg.Window)}
	if l.cfg.Disabled {
		return Decision{Allowed: true, Status: status}, nil
	}

	used, err := l.store.Count(ctx, SubjectKey(id), start)
	if err != nil {
		logx.Warn().Err(err).Str("subject_type", id.Type).Msg("rate limit lookup failed, admitting request")
		return Decision{Allowed: true, Status: status}, nil
	}
	status.Remaining = max(limit-used, 0)
	if used >= limit {
		status.Reason = reason
		return Decision{Allowed: false, Status: status}, nil
	}
	return Decision{Allowed: true, Status: status}, nil
}

// Record counts one successful search against the subject and returns the
// status after the increment.
func (l *Limiter) Record(ctx context.Context, id domain.Identity) (domain.RateLimitStatus, error) {
	limit, _ := l.limitFor(id)
	start := WindowStart(l.now(), l.cfg.Window)
	status := domain.RateLimitStatus{Limit: limit, Remaining: limit, ResetAt: start.Add(l.cfg.Window)}
	if l.cfg.Disabled {
		return status, nil
	}

	// Keep the counter alive past the window edge so late reads still see it.
	ttl := start.Add(l.cfg.Window).Sub(l.now()) + time.Minute
	used, err := l.store.Increment(ctx, SubjectKey(id), start, ttl)
	if err != nil {
		return status, fmt.Errorf("ratelimit: record: %w", err)
	}
	status.Remaining = max(limit-used, 0)
	return status, nil
}
