package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/integrations/productsearch"
	"shopping-agent/internal/logx"
	"shopping-agent/internal/ratelimit"
	"shopping-agent/internal/repository"
	"shopping-agent/internal/stream"
)

const (
	defaultMaxLoops       = 3
	defaultMaxContext     = 20
	defaultMaxQuery       = 500
	defaultToolTimeout    = 20 * time.Second
	maxTitleRunes         = 80
	maxLocaleLen          = 16
	clientErrorMessage    = "Something went wrong while searching. Please try again."
	clientNotFoundMessage = "This conversation could not be found."
)

type LLMClient interface {
	ChatWithTools(ctx context.Context, model string, messages []domain.ChatMessage, tools []domain.ToolDefinition) (domain.Completion, error)
}

type ProductSearcher interface {
	Search(ctx context.Context, req productsearch.Request) ([]domain.Product, error)
}

// Store is the persistence surface of a search run.
type Store interface {
	CreateConversation(ctx context.Context, conv domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	InsertTurn(ctx context.Context, user, placeholder domain.Message) error
	FinalizeMessage(ctx context.Context, conversationID, messageID, content string, meta domain.MessageMetadata) error
	InsertCategory(ctx context.Context, cat domain.Category) error
	InsertProducts(ctx context.Context, categoryID string, products []domain.Product) error
	ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error)
	IncrementAggregates(ctx context.Context, conversationID string, delta domain.Aggregates) error
	SetThumbnail(ctx context.Context, conversationID, imageURL string, force bool) error
}

type RateLimiter interface {
	Check(ctx context.Context, id domain.Identity) (ratelimit.Decision, error)
	Record(ctx context.Context, id domain.Identity) (domain.RateLimitStatus, error)
}

// Sink receives the frames of one search run. Implementations drop frames
// after the first done or error.
type Sink interface {
	Status(text string) error
	Category(ev stream.CategoryEvent) error
	Summary(ev stream.SummaryEvent) error
	Done(ev stream.DoneEvent) error
	Error(message string) error
}

type Options struct {
	Model           string
	MaxLoops        int
	MaxContextItems int
	MaxQueryLength  int
	ToolTimeout     time.Duration
	DefaultLocale   string
}

type SearchService struct {
	llm     LLMClient
	search  ProductSearcher
	store   Store
	limiter RateLimiter
	opts    Options
	now     func() time.Time
}

type SearchInput struct {
	ConversationID string
	Query          string
	Locale         string
	Identity       domain.Identity
}

type SearchOutput struct {
	ConversationID string
	MessageID      string
	Categories     []stream.CategoryRef
	Products       int
}

func NewSearchService(llm LLMClient, search ProductSearcher, store Store, limiter RateLimiter, opts Options) (*SearchService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if search == nil {
		return nil, errors.New("usecase: product searcher must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if opts.MaxLoops <= 0 {
		opts.MaxLoops = defaultMaxLoops
	}
	if opts.MaxContextItems <= 0 {
		opts.MaxContextItems = defaultMaxContext
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = defaultMaxQuery
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaultToolTimeout
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = productsearch.DefaultLocale
	}
	return &SearchService{llm: llm, search: search, store: store, limiter: limiter, opts: opts, now: time.Now}, nil
}

// Validate normalizes the request body fields.
func (s *SearchService) Validate(in SearchInput) (SearchInput, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.Locale = strings.TrimSpace(in.Locale)
	if in.Query == "" {
		return in, newError(ErrorInvalidInput, "empty_query", nil)
	}
	if utf8.RuneCountInString(in.Query) > s.opts.MaxQueryLength {
		return in, newError(ErrorInvalidInput, "query_too_long", nil)
	}
	if in.ConversationID != "" {
		if _, err := uuid.Parse(in.ConversationID); err != nil {
			return in, newError(ErrorInvalidInput, "invalid_conversation_id", err)
		}
	}
	if len(in.Locale) > maxLocaleLen {
		return in, newError(ErrorInvalidInput, "invalid_locale", nil)
	}
	if in.Locale == "" {
		in.Locale = s.opts.DefaultLocale
	}
	return in, nil
}

// Admit runs before the response switches to streaming. A rejection carries
// the caller's quota status.
func (s *SearchService) Admit(ctx context.Context, id domain.Identity) (domain.RateLimitStatus, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return domain.RateLimitStatus{}, newError(ErrorAuthRequired, "missing_identity", nil)
	}
	decision, err := s.limiter.Check(ctx, id)
	if err != nil {
		return domain.RateLimitStatus{}, newError(ErrorInternal, "rate_limit_check_error", err)
	}
	if !decision.Allowed {
		status := decision.Status
		e := newError(ErrorRateLimited, status.Reason, nil)
		e.RateLimit = &status
		return status, e
	}
	return decision.Status, nil
}

// runState is shared by the tool calls of one run. mu serializes category
// commits so sort order equals emission order.
type runState struct {
	conv      domain.Conversation
	isNew     bool
	messageID string
	locale    string

	mu            sync.Mutex
	nextSort      int
	categories    []stream.CategoryRef
	products      int
	firstProducts []domain.Product
}

// Run executes one admitted search and streams its progress to sink. Exactly
// one terminal frame is written: done on success, error otherwise.
func (s *SearchService) Run(ctx context.Context, in SearchInput, sink Sink) (SearchOutput, error) {
	out, err := s.run(ctx, in, sink)
	if err != nil {
		logx.Error().Err(err).Str("code", string(CodeOf(err))).Str("conversation_id", out.ConversationID).
			Msg("search run failed")
		_ = sink.Error(clientMessage(err))
		return out, err
	}
	return out, nil
}

func (s *SearchService) run(ctx context.Context, in SearchInput, sink Sink) (SearchOutput, error) {
	_ = sink.Status("Understanding your request…")

	run, err := s.openConversation(ctx, in)
	if err != nil {
		return SearchOutput{}, err
	}
	out := SearchOutput{ConversationID: run.conv.ID}

	var history []domain.Message
	if !run.isNew {
		history, err = s.store.ListMessages(ctx, run.conv.ID, s.opts.MaxContextItems)
		if err != nil {
			return out, newError(ErrorInternal, "dynamodb_history_error", err)
		}
	}

	now := s.now().UTC()
	user := domain.Message{
		ID:             newUUID(),
		ConversationID: run.conv.ID,
		Role:           domain.RoleUser,
		Content:        in.Query,
		Status:         domain.MessageComplete,
		CreatedAt:      now,
	}
	placeholder := domain.Message{
		ID:             newUUID(),
		ConversationID: run.conv.ID,
		Role:           domain.RoleAssistant,
		Status:         domain.MessagePending,
		CreatedAt:      now,
	}
	if err := s.store.InsertTurn(ctx, user, placeholder); err != nil {
		return out, newError(ErrorInternal, "dynamodb_turn_insert_error", err)
	}
	run.messageID = placeholder.ID
	out.MessageID = placeholder.ID

	messages := buildPromptMessages(promptContext{
		locale:   run.locale,
		maxLoops: s.opts.MaxLoops,
		now:      now,
	}, in.Query, history)

	answer, err := s.runLoop(ctx, run, messages, sink)
	if err != nil {
		return out, err
	}

	_ = sink.Status("Writing summary…")
	if err := s.store.FinalizeMessage(ctx, run.conv.ID, run.messageID, answer.Summary, answer.metadata()); err != nil {
		return out, newError(ErrorInternal, "dynamodb_finalize_error", err)
	}
	_ = sink.Summary(stream.SummaryEvent{
		Content:          answer.Summary,
		Recommendations:  answer.Recommendations,
		FollowUpQuestion: answer.FollowUpQuestion,
		FollowUpOptions:  answer.FollowUpOptions,
	})

	s.updateAggregates(ctx, run, answer.Recommendations)

	var rate *domain.RateLimitStatus
	if status, err := s.limiter.Record(ctx, in.Identity); err != nil {
		logx.Warn().Err(err).Str("conversation_id", run.conv.ID).Msg("rate limit increment failed")
	} else {
		rate = &status
	}

	out.Categories = run.categories
	out.Products = run.products
	_ = sink.Done(stream.DoneEvent{
		ConversationID: run.conv.ID,
		MessageID:      run.messageID,
		Categories:     run.categories,
		RateLimit:      rate,
	})
	return out, nil
}

func (s *SearchService) openConversation(ctx context.Context, in SearchInput) (*runState, error) {
	run := &runState{locale: in.Locale}
	if in.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, in.ConversationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, newError(ErrorNotFound, "conversation_not_found", err)
			}
			return nil, newError(ErrorInternal, "dynamodb_conversation_error", err)
		}
		// Another subject's conversation is reported as missing.
		if conv.OwnerSubject != in.Identity.Subject {
			return nil, newError(ErrorNotFound, "conversation_not_owned", nil)
		}
		run.conv = conv
		return run, nil
	}

	now := s.now().UTC()
	conv := domain.Conversation{
		ID:           newUUID(),
		OwnerSubject: in.Identity.Subject,
		Title:        truncateRunes(in.Query, maxTitleRunes),
		Status:       domain.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, newError(ErrorInternal, "dynamodb_conversation_create_error", err)
	}
	run.conv = conv
	run.isNew = true
	return run, nil
}

// updateAggregates is best effort; the search has already been answered.
func (s *SearchService) updateAggregates(ctx context.Context, run *runState, recs []domain.Recommendation) {
	delta := domain.Aggregates{Categories: len(run.categories), Products: run.products, Searches: 1}
	if err := s.store.IncrementAggregates(ctx, run.conv.ID, delta); err != nil {
		logx.Warn().Err(err).Str("conversation_id", run.conv.ID).Msg("aggregate update failed")
	}
	var lead string
	if len(recs) > 0 {
		lead = recs[0].Title
	}
	thumbnail := pickThumbnail(run.firstProducts, lead)
	if thumbnail == "" {
		return
	}
	firstSearch := run.isNew || run.conv.SearchCount == 0
	if err := s.store.SetThumbnail(ctx, run.conv.ID, thumbnail, firstSearch); err != nil {
		logx.Warn().Err(err).Str("conversation_id", run.conv.ID).Msg("thumbnail update failed")
	}
}

func clientMessage(err error) string {
	if CodeOf(err) == ErrorNotFound {
		return clientNotFoundMessage
	}
	return clientErrorMessage
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func describeCount(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

var newUUID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}
