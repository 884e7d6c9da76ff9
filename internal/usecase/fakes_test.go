package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/integrations/productsearch"
	"shopping-agent/internal/ratelimit"
	"shopping-agent/internal/repository"
	"shopping-agent/internal/stream"
)

// eventLog records store writes and emitted frames in one sequence.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *eventLog) index(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == s {
			return i
		}
	}
	return -1
}

type llmReply struct {
	completion domain.Completion
	err        error
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []llmReply
	// repeat makes the last reply sticky once the script runs out.
	repeat bool
	calls  [][]domain.ChatMessage
	tools  [][]domain.ToolDefinition
	models []string
}

func (f *fakeLLM) ChatWithTools(_ context.Context, model string, msgs []domain.ChatMessage, tools []domain.ToolDefinition) (domain.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]domain.ChatMessage(nil), msgs...)
	f.calls = append(f.calls, cp)
	f.tools = append(f.tools, tools)
	f.models = append(f.models, model)
	idx := len(f.calls) - 1
	if idx >= len(f.replies) {
		if !f.repeat || len(f.replies) == 0 {
			return domain.Completion{}, errors.New("no llm reply configured")
		}
		idx = len(f.replies) - 1
	}
	return f.replies[idx].completion, f.replies[idx].err
}

func toolCalls(calls ...domain.ToolCall) llmReply {
	return llmReply{completion: domain.Completion{ToolCalls: calls}}
}

func finalReply(content string) llmReply {
	return llmReply{completion: domain.Completion{Content: content}}
}

func searchCall(id, query, label string) domain.ToolCall {
	return domain.ToolCall{
		ID:        id,
		Name:      toolSearchProducts,
		Arguments: fmt.Sprintf(`{"query":%q,"categoryLabel":%q,"description":"fits"}`, query, label),
	}
}

type searchResult struct {
	products []domain.Product
	err      error
	gate     chan struct{}
}

type fakeSearch struct {
	mu       sync.Mutex
	results  map[string]*searchResult
	requests []productsearch.Request
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{results: map[string]*searchResult{}}
}

func (f *fakeSearch) set(query string, r *searchResult) *fakeSearch {
	f.results[query] = r
	return f
}

func (f *fakeSearch) Search(ctx context.Context, req productsearch.Request) ([]domain.Product, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	r, ok := f.results[req.Query]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("unexpected query " + req.Query)
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.products, r.err
}

func someProducts(prefix string, n int) []domain.Product {
	out := make([]domain.Product, n)
	for i := range out {
		price := int64(1000 + i*100)
		out[i] = domain.Product{
			Title:        fmt.Sprintf("%s %d", prefix, i),
			PriceCents:   &price,
			PriceDisplay: fmt.Sprintf("$%d.00", 10+i),
			ImageURL:     fmt.Sprintf("https://img/%s/%d.jpg", prefix, i),
			Retailer:     "amazon.com",
		}
	}
	return out
}

type memStore struct {
	log *eventLog

	mu            sync.Mutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
	categories    []domain.Category
	products      map[string][]domain.Product
	finalized     map[string]domain.Message
	aggregates    []domain.Aggregates
	thumbnails    []thumbnailCall

	createErr    error
	getErr       error
	categoryErr  error
	aggregateErr error
	finalizeErr  error
}

type thumbnailCall struct {
	url   string
	force bool
}

func newMemStore(log *eventLog) *memStore {
	return &memStore{
		log:           log,
		conversations: map[string]domain.Conversation{},
		messages:      map[string][]domain.Message{},
		products:      map[string][]domain.Product{},
		finalized:     map[string]domain.Message{},
	}
}

func (m *memStore) CreateConversation(_ context.Context, conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.conversations[conv.ID] = conv
	m.log.add("store:conversation")
	return nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Conversation{}, m.getErr
	}
	conv, ok := m.conversations[id]
	if !ok {
		return domain.Conversation{}, repository.ErrNotFound
	}
	return conv, nil
}

func (m *memStore) ListMessages(_ context.Context, id string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[id]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (m *memStore) InsertTurn(_ context.Context, user, placeholder domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[user.ConversationID] = append(m.messages[user.ConversationID], user, placeholder)
	m.log.add("store:placeholder")
	return nil
}

func (m *memStore) FinalizeMessage(_ context.Context, convID, msgID, content string, meta domain.MessageMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	if _, done := m.finalized[msgID]; done {
		return repository.ErrAlreadyFinalized
	}
	m.finalized[msgID] = domain.Message{ID: msgID, ConversationID: convID, Content: content, Metadata: meta, Status: domain.MessageComplete}
	m.log.add("store:finalize")
	return nil
}

func (m *memStore) InsertCategory(_ context.Context, cat domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.categoryErr != nil {
		return m.categoryErr
	}
	m.categories = append(m.categories, cat)
	m.log.add("store:category")
	return nil
}

func (m *memStore) InsertProducts(_ context.Context, categoryID string, products []domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range products {
		p.ID = fmt.Sprintf("%s-p%d", categoryID, i)
		p.CategoryID = categoryID
		m.products[categoryID] = append(m.products[categoryID], p)
	}
	return nil
}

func (m *memStore) ListProducts(_ context.Context, categoryID string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product(nil), m.products[categoryID]...), nil
}

func (m *memStore) IncrementAggregates(_ context.Context, _ string, delta domain.Aggregates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aggregateErr != nil {
		return m.aggregateErr
	}
	m.aggregates = append(m.aggregates, delta)
	return nil
}

func (m *memStore) SetThumbnail(_ context.Context, _ string, url string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thumbnails = append(m.thumbnails, thumbnailCall{url: url, force: force})
	return nil
}

type fakeLimiter struct {
	decision  ratelimit.Decision
	checkErr  error
	recordErr error
	recorded  int
}

func (f *fakeLimiter) Check(_ context.Context, _ domain.Identity) (ratelimit.Decision, error) {
	return f.decision, f.checkErr
}

func (f *fakeLimiter) Record(_ context.Context, _ domain.Identity) (domain.RateLimitStatus, error) {
	f.recorded++
	if f.recordErr != nil {
		return domain.RateLimitStatus{}, f.recordErr
	}
	return domain.RateLimitStatus{Limit: 5, Remaining: 4, ResetAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}, nil
}

type frame struct {
	name    string
	payload any
}

// recordingSink mirrors stream.Emitter's terminal rule.
type recordingSink struct {
	log *eventLog

	mu         sync.Mutex
	frames     []frame
	terminated bool
	categoryCh chan string
}

func newRecordingSink(log *eventLog) *recordingSink {
	return &recordingSink{log: log}
}

func (r *recordingSink) add(name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated {
		return stream.ErrTerminated
	}
	if name == stream.EventDone || name == stream.EventError {
		r.terminated = true
	}
	r.frames = append(r.frames, frame{name: name, payload: payload})
	r.log.add("sink:" + name)
	return nil
}

func (r *recordingSink) Status(text string) error { return r.add(stream.EventStatus, text) }

func (r *recordingSink) Category(ev stream.CategoryEvent) error {
	err := r.add(stream.EventCategory, ev)
	if r.categoryCh != nil {
		r.categoryCh <- ev.Label
	}
	return err
}

func (r *recordingSink) Summary(ev stream.SummaryEvent) error { return r.add(stream.EventSummary, ev) }
func (r *recordingSink) Done(ev stream.DoneEvent) error       { return r.add(stream.EventDone, ev) }
func (r *recordingSink) Error(message string) error           { return r.add(stream.EventError, message) }

func (r *recordingSink) named(name string) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame
	for _, f := range r.frames {
		if f.name == name {
			out = append(out, f)
		}
	}
	return out
}

func (r *recordingSink) categories() []stream.CategoryEvent {
	var out []stream.CategoryEvent
	for _, f := range r.named(stream.EventCategory) {
		out = append(out, f.payload.(stream.CategoryEvent))
	}
	return out
}

func (r *recordingSink) last() frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

// requireSingleTerminal checks that exactly one of done/error was emitted and
// that it is the final frame.
func (r *recordingSink) requireSingleTerminal(t *testing.T, want string) {
	t.Helper()
	done := len(r.named(stream.EventDone))
	failed := len(r.named(stream.EventError))
	require.Equal(t, 1, done+failed)
	require.Equal(t, want, r.last().name)
}

type harness struct {
	log     *eventLog
	llm     *fakeLLM
	search  *fakeSearch
	store   *memStore
	limiter *fakeLimiter
	sink    *recordingSink
	svc     *SearchService
}

func newHarness(t *testing.T, replies ...llmReply) *harness {
	t.Helper()
	log := &eventLog{}
	h := &harness{
		log:     log,
		llm:     &fakeLLM{replies: replies},
		search:  newFakeSearch(),
		store:   newMemStore(log),
		limiter: &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Status: domain.RateLimitStatus{Limit: 5, Remaining: 5}}},
		sink:    newRecordingSink(log),
	}
	svc, err := NewSearchService(h.llm, h.search, h.store, h.limiter, Options{Model: "gpt-test", MaxLoops: 3, ToolTimeout: 10 * time.Second})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.svc = svc
	return h
}

var testUser = domain.Identity{Type: domain.IdentityUser, Subject: "user-1"}

func (h *harness) run(t *testing.T, in SearchInput) (SearchOutput, error) {
	t.Helper()
	if in.Identity == (domain.Identity{}) {
		in.Identity = testUser
	}
	in, err := h.svc.Validate(in)
	require.NoError(t, err)
	return h.svc.Run(context.Background(), in, h.sink)
}
