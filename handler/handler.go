package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/identity"
	"shopping-agent/internal/logx"
	"shopping-agent/internal/ratelimit"
	"shopping-agent/internal/stream"
	"shopping-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	maxBodyBytes        = 16 << 10
)

// SearchUseCase is the part of usecase.SearchService the handler drives.
type SearchUseCase interface {
	Validate(in usecase.SearchInput) (usecase.SearchInput, error)
	Admit(ctx context.Context, id domain.Identity) (domain.RateLimitStatus, error)
	Run(ctx context.Context, in usecase.SearchInput, sink usecase.Sink) (usecase.SearchOutput, error)
}

type Handler struct {
	uc SearchUseCase
}

func NewHandler(uc SearchUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

type searchRequest struct {
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
	Locale         string `json:"locale"`
}

type errorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Code      string     `json:"code,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// rejection is a pre-stream failure rendered as a JSON response.
type rejection struct {
	status int
	body   errorResponse
}

// admit runs every check that can still answer with a plain JSON status.
// Identity comes first, then body decoding, validation and the rate limit.
func (h *Handler) admit(ctx context.Context, headers identity.Headers, body []byte) (usecase.SearchInput, *rejection) {
	id, err := identity.Resolve(headers)
	if err != nil {
		return usecase.SearchInput{}, reject(&usecase.Error{Code: usecase.ErrorAuthRequired, Reason: "missing_identity", Err: err})
	}

	var req searchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return usecase.SearchInput{}, reject(&usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
	}

	in, err := h.uc.Validate(usecase.SearchInput{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Locale:         req.Locale,
	})
	if err != nil {
		return usecase.SearchInput{}, reject(err)
	}
	in.Identity = id

	if _, err := h.uc.Admit(ctx, id); err != nil {
		return usecase.SearchInput{}, reject(err)
	}
	return in, nil
}

// serve runs an admitted search, writing frames to w. The run is detached
// from ctx cancellation so a dropped client does not abort persistence.
func (h *Handler) serve(ctx context.Context, correlationID string, in usecase.SearchInput, w io.Writer) {
	emitter := stream.NewEmitter(w)
	start := time.Now()
	out, err := h.uc.Run(context.WithoutCancel(ctx), in, emitter)
	ev := logx.Info()
	if err != nil {
		ev = logx.Warn().Err(err)
	}
	ev.Str("correlation_id", correlationID).
		Str("conversation_id", out.ConversationID).
		Str("message_id", out.MessageID).
		Int("categories", len(out.Categories)).
		Int("products", out.Products).
		Bool("client_gone", emitter.Err() != nil).
		Dur("elapsed", time.Since(start)).
		Msg("search stream finished")
}

func reject(err error) *rejection {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	body := errorResponse{Error: string(ue.Code), Message: publicMessage(ue.Code)}
	if ue.Code == usecase.ErrorRateLimited && ue.RateLimit != nil {
		rl := *ue.RateLimit
		body.Code = rl.Reason
		body.Remaining = &rl.Remaining
		body.Limit = &rl.Limit
		if !rl.ResetAt.IsZero() {
			body.ResetAt = &rl.ResetAt
		}
		body.Message = rateLimitMessage(rl.Reason)
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("code", string(ue.Code)).Str("reason", ue.Reason).Msg("request rejected")
	} else {
		logx.Info().Str("code", string(ue.Code)).Str("reason", ue.Reason).Msg("request rejected")
	}
	return &rejection{status: status, body: body}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorAuthRequired:
		return http.StatusUnauthorized
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorInvalidInput:
		return "The request is invalid. Send a non-empty query."
	case usecase.ErrorAuthRequired:
		return "Sign in or provide an anonymous id to search."
	case usecase.ErrorNotFound:
		return "Conversation not found."
	case usecase.ErrorUpstream:
		return "The assistant is unavailable right now. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func rateLimitMessage(reason string) string {
	if reason == ratelimit.ReasonGuestLimit {
		return "You have used all free searches for today. Sign in to keep searching."
	}
	return "You have reached today's search limit. Please try again later."
}

func correlationID(h identity.Headers) string {
	if v := strings.TrimSpace(h.Get(headerCorrelationID)); v != "" {
		return v
	}
	return uuid.NewString()
}
