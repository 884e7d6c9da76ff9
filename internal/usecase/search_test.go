package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/integrations/openai"
	"shopping-agent/internal/ratelimit"
	"shopping-agent/internal/stream"
)

const structuredAnswer = `{"summary":"Two solid picks for everyday listening.","recommendations":[{"title":"Budget 0","reason":"cheap","categoryLabel":"Budget"}],"followUpQuestion":"Do you need noise cancelling?","followUpOptions":["Yes","No"]}`

func TestNewSearchService_Validates(t *testing.T) {
	h := newHarness(t)
	_, err := NewSearchService(nil, h.search, h.store, h.limiter, Options{Model: "m"})
	require.Error(t, err)
	_, err = NewSearchService(h.llm, nil, h.store, h.limiter, Options{Model: "m"})
	require.Error(t, err)
	_, err = NewSearchService(h.llm, h.search, nil, h.limiter, Options{Model: "m"})
	require.Error(t, err)
	_, err = NewSearchService(h.llm, h.search, h.store, nil, Options{Model: "m"})
	require.Error(t, err)
	_, err = NewSearchService(h.llm, h.search, h.store, h.limiter, Options{})
	require.Error(t, err)
}

func TestRun_NewConversationScenario(t *testing.T) {
	h := newHarness(t,
		toolCalls(searchCall("call_1", "budget wireless earbuds", "Budget"), searchCall("call_2", "premium wireless earbuds", "Premium")),
		finalReply(structuredAnswer),
	)
	h.search.set("budget wireless earbuds", &searchResult{products: someProducts("Budget", 4)})
	h.search.set("premium wireless earbuds", &searchResult{products: someProducts("Premium", 3)})

	out, err := h.run(t, SearchInput{Query: "wireless earbuds"})
	require.NoError(t, err)

	// Conversation created and titled from the query.
	require.Len(t, h.store.conversations, 1)
	conv := h.store.conversations[out.ConversationID]
	require.Equal(t, "wireless earbuds", conv.Title)
	require.Equal(t, "user-1", conv.OwnerSubject)

	// Placeholder strictly before the first category.
	placeholderAt := h.log.index("store:placeholder")
	firstCategoryAt := h.log.index("sink:category")
	require.GreaterOrEqual(t, placeholderAt, 0)
	require.Greater(t, firstCategoryAt, placeholderAt)
	require.Less(t, h.log.index("store:conversation"), placeholderAt)

	cats := h.sink.categories()
	require.GreaterOrEqual(t, len(cats), 1)
	require.LessOrEqual(t, len(cats), 3*2)

	summaries := h.sink.named(stream.EventSummary)
	require.Len(t, summaries, 1)
	summary := summaries[0].payload.(stream.SummaryEvent)
	require.Equal(t, "Two solid picks for everyday listening.", summary.Content)
	require.Equal(t, "Budget 0", summary.Recommendations[0].Title)
	require.Equal(t, "Do you need noise cancelling?", *summary.FollowUpQuestion)
	require.Equal(t, []string{"Yes", "No"}, summary.FollowUpOptions)

	h.sink.requireSingleTerminal(t, stream.EventDone)
	done := h.sink.last().payload.(stream.DoneEvent)
	require.Equal(t, out.ConversationID, done.ConversationID)
	require.Equal(t, out.MessageID, done.MessageID)
	require.Len(t, done.Categories, 2)
	require.Equal(t, 4, done.RateLimit.Remaining)

	// Every persisted row references the same conversation.
	for _, c := range h.store.categories {
		require.Equal(t, out.ConversationID, c.ConversationID)
		require.Equal(t, out.MessageID, c.MessageID)
	}
	for _, m := range h.store.messages[out.ConversationID] {
		require.Equal(t, out.ConversationID, m.ConversationID)
	}
	final := h.store.finalized[out.MessageID]
	require.Equal(t, out.ConversationID, final.ConversationID)
	require.Equal(t, "Two solid picks for everyday listening.", final.Content)
	require.Equal(t, "Budget 0", final.Metadata.Recommendations[0].Title)

	require.Equal(t, []domain.Aggregates{{Categories: 2, Products: 7, Searches: 1}}, h.store.aggregates)
	require.Len(t, h.store.thumbnails, 1)
	require.True(t, h.store.thumbnails[0].force)
	require.Equal(t, 1, h.limiter.recorded)

	// Model sees tool results in call order on the second turn.
	require.Len(t, h.llm.calls, 2)
	second := h.llm.calls[1]
	require.Equal(t, domain.RoleSystem, second[0].Role)
	require.Equal(t, "wireless earbuds", second[1].Content)
	require.Len(t, second[2].ToolCalls, 2)
	require.Equal(t, "call_1", second[3].ToolCallID)
	require.Contains(t, second[3].Content, `"categoryLabel":"Budget"`)
	require.Equal(t, "call_2", second[4].ToolCallID)
	require.Equal(t, toolSearchProducts, h.llm.tools[0][0].Name)
	require.Equal(t, "gpt-test", h.llm.models[0])
	require.Equal(t, "en-US", h.search.requests[0].Locale)
}

func TestRun_ThumbnailFollowsLeadRecommendation(t *testing.T) {
	answer := `{"summary":"One pick.","recommendations":[{"title":"Budget 2","reason":"best value","categoryLabel":"Budget"}]}`
	h := newHarness(t, toolCalls(searchCall("call_1", "budget earbuds", "Budget")), finalReply(answer))
	h.search.set("budget earbuds", &searchResult{products: someProducts("Budget", 4)})

	_, err := h.run(t, SearchInput{Query: "earbuds"})
	require.NoError(t, err)
	require.Len(t, h.store.thumbnails, 1)
	require.Equal(t, "https://img/Budget/2.jpg", h.store.thumbnails[0].url)

	// No match falls back to the first image.
	h = newHarness(t, toolCalls(searchCall("call_1", "budget earbuds", "Budget")), finalReply(`{"summary":"Hmm.","recommendations":[{"title":"Something else entirely"}]}`))
	h.search.set("budget earbuds", &searchResult{products: someProducts("Budget", 4)})
	_, err = h.run(t, SearchInput{Query: "earbuds"})
	require.NoError(t, err)
	require.Equal(t, "https://img/Budget/0.jpg", h.store.thumbnails[0].url)
}

func TestRun_SortOrderFollowsCompletionOrder(t *testing.T) {
	h := newHarness(t,
		toolCalls(searchCall("a", "q0", "First asked"), searchCall("b", "q1", "Second asked"), searchCall("c", "q2", "Third asked")),
		finalReply(structuredAnswer),
	)
	gates := map[string]chan struct{}{"q0": make(chan struct{}), "q1": make(chan struct{}), "q2": make(chan struct{})}
	for q, g := range gates {
		h.search.set(q, &searchResult{products: someProducts(q, 2), gate: g})
	}
	h.sink.categoryCh = make(chan string, 3)

	type result struct {
		out SearchOutput
		err error
	}
	resCh := make(chan result, 1)
	in, err := h.svc.Validate(SearchInput{Query: "gift ideas", Identity: testUser})
	require.NoError(t, err)
	go func() {
		out, err := h.svc.Run(context.Background(), in, h.sink)
		resCh <- result{out, err}
	}()

	var completed []string
	for _, q := range []string{"q2", "q0", "q1"} {
		close(gates[q])
		select {
		case label := <-h.sink.categoryCh:
			completed = append(completed, label)
		case <-time.After(5 * time.Second):
			t.Fatal("category was not emitted")
		}
	}
	res := <-resCh
	require.NoError(t, res.err)

	require.Equal(t, []string{"Third asked", "First asked", "Second asked"}, completed)
	cats := h.sink.categories()
	require.Len(t, cats, 3)
	for i, c := range cats {
		require.Equal(t, i, c.SortOrder)
	}
	h.sink.requireSingleTerminal(t, stream.EventDone)
}

func TestRun_FailedSearchesDoNotAbortLoop(t *testing.T) {
	h := newHarness(t,
		toolCalls(
			searchCall("ok_1", "desk lamp", "Lamps"),
			searchCall("boom", "broken", "Broken"),
			domain.ToolCall{ID: "bad_args", Name: toolSearchProducts, Arguments: `{"query":"chairs"}`},
			searchCall("ok_2", "monitor arm", "Arms"),
		),
		finalReply(structuredAnswer),
	)
	h.search.set("desk lamp", &searchResult{products: someProducts("Lamp", 2)})
	h.search.set("broken", &searchResult{err: errors.New("upstream 503")})
	h.search.set("monitor arm", &searchResult{products: someProducts("Arm", 1)})

	_, err := h.run(t, SearchInput{Query: "home office"})
	require.NoError(t, err)

	cats := h.sink.categories()
	require.Len(t, cats, 2)
	for _, c := range cats {
		require.NotEmpty(t, c.Products)
	}
	require.Len(t, h.store.categories, 2)
	require.Len(t, h.sink.named(stream.EventSummary), 1)
	h.sink.requireSingleTerminal(t, stream.EventDone)

	toolMsgs := h.llm.calls[1][3:]
	require.Len(t, toolMsgs, 4)
	require.Equal(t, "boom", toolMsgs[1].ToolCallID)
	require.Contains(t, toolMsgs[1].Content, `"error":"search failed`)
	require.Contains(t, toolMsgs[2].Content, "categoryLabel is required")
	require.NotContains(t, toolMsgs[1].Content, "upstream 503")
}

func TestRun_ZeroResultsRecordNoCategory(t *testing.T) {
	h := newHarness(t,
		toolCalls(searchCall("c1", "unobtainium", "Rare")),
		finalReply(structuredAnswer),
	)
	h.search.set("unobtainium", &searchResult{products: nil})

	_, err := h.run(t, SearchInput{Query: "unobtainium"})
	require.NoError(t, err)
	require.Empty(t, h.sink.categories())
	require.Empty(t, h.store.categories)
	require.Contains(t, h.llm.calls[1][3].Content, `"productCount":0`)
	require.Empty(t, h.store.thumbnails)
	require.Equal(t, []domain.Aggregates{{Searches: 1}}, h.store.aggregates)
	h.sink.requireSingleTerminal(t, stream.EventDone)
}

func TestRun_UnstructuredFinalAnswer(t *testing.T) {
	raw := "Here are some great earbuds for you!"
	h := newHarness(t, finalReply(raw))

	out, err := h.run(t, SearchInput{Query: "earbuds"})
	require.NoError(t, err)

	summaries := h.sink.named(stream.EventSummary)
	require.Len(t, summaries, 1)
	summary := summaries[0].payload.(stream.SummaryEvent)
	require.Equal(t, raw, summary.Content)
	require.NotNil(t, summary.Recommendations)
	require.Empty(t, summary.Recommendations)
	require.NotNil(t, summary.FollowUpOptions)
	require.Empty(t, summary.FollowUpOptions)
	require.Nil(t, summary.FollowUpQuestion)
	require.Equal(t, raw, h.store.finalized[out.MessageID].Content)
	h.sink.requireSingleTerminal(t, stream.EventDone)
}

func TestRun_LoopExhaustionUsesDefaultSummary(t *testing.T) {
	h := newHarness(t, toolCalls(searchCall("c1", "tents", "Tents")))
	h.llm.repeat = true
	h.search.set("tents", &searchResult{products: someProducts("Tent", 2)})

	_, err := h.run(t, SearchInput{Query: "camping gear"})
	require.NoError(t, err)
	require.Len(t, h.llm.calls, 3)
	require.Len(t, h.sink.categories(), 3)

	summary := h.sink.named(stream.EventSummary)[0].payload.(stream.SummaryEvent)
	require.Equal(t, "Here are the products I found across 3 categories.", summary.Content)
	h.sink.requireSingleTerminal(t, stream.EventDone)
}

func TestRun_LLMErrorEndsWithErrorFrame(t *testing.T) {
	h := newHarness(t, llmReply{err: &openai.HTTPStatusError{StatusCode: 500, Message: "boom"}})

	out, err := h.run(t, SearchInput{Query: "earbuds"})
	require.Error(t, err)
	require.Equal(t, ErrorUpstream, CodeOf(err))
	require.NotEmpty(t, out.MessageID)

	h.sink.requireSingleTerminal(t, stream.EventError)
	require.Equal(t, clientErrorMessage, h.sink.last().payload)
	require.Empty(t, h.sink.named(stream.EventSummary))
	require.Empty(t, h.store.finalized)
	require.Zero(t, h.limiter.recorded)
}

func TestRun_LLMRateLimitReason(t *testing.T) {
	h := newHarness(t, llmReply{err: &openai.HTTPStatusError{StatusCode: 429, Message: "slow down"}})
	_, err := h.run(t, SearchInput{Query: "earbuds"})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "openai_rate_limited", ue.Reason)
}

func TestRun_PersistenceFailureInToolIsFatal(t *testing.T) {
	h := newHarness(t,
		toolCalls(searchCall("c1", "earbuds", "Budget")),
		finalReply(structuredAnswer),
	)
	h.search.set("earbuds", &searchResult{products: someProducts("Bud", 2)})
	h.store.categoryErr = errors.New("ProvisionedThroughputExceededException")

	_, err := h.run(t, SearchInput{Query: "earbuds"})
	require.Error(t, err)
	require.Equal(t, ErrorInternal, CodeOf(err))
	require.Len(t, h.llm.calls, 1)
	h.sink.requireSingleTerminal(t, stream.EventError)
	require.Empty(t, h.sink.categories())
}

func TestRun_FinalizeFailureIsFatal(t *testing.T) {
	h := newHarness(t, finalReply(structuredAnswer))
	h.store.finalizeErr = errors.New("boom")
	_, err := h.run(t, SearchInput{Query: "earbuds"})
	require.Error(t, err)
	h.sink.requireSingleTerminal(t, stream.EventError)
	require.Empty(t, h.sink.named(stream.EventSummary))
}

func TestRun_ConversationNotFoundOrNotOwned(t *testing.T) {
	const convID = "0195f3a4-7b1e-7cc0-9a4e-3f2b1c0d9e8f"
	for name, setup := range map[string]func(h *harness){
		"missing": func(*harness) {},
		"not owned": func(h *harness) {
			h.store.conversations[convID] = domain.Conversation{ID: convID, OwnerSubject: "someone-else"}
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, finalReply(structuredAnswer))
			setup(h)
			_, err := h.run(t, SearchInput{Query: "earbuds", ConversationID: convID})
			require.Equal(t, ErrorNotFound, CodeOf(err))
			h.sink.requireSingleTerminal(t, stream.EventError)
			require.Equal(t, clientNotFoundMessage, h.sink.last().payload)
			require.Empty(t, h.llm.calls)
			require.Equal(t, -1, h.log.index("store:placeholder"))
		})
	}
}

func TestRun_ExistingConversationReplaysHistory(t *testing.T) {
	const convID = "0195f3a4-7b1e-7cc0-9a4e-3f2b1c0d9e8f"
	h := newHarness(t,
		toolCalls(searchCall("c1", "earbuds under 50", "Budget")),
		finalReply(structuredAnswer),
	)
	h.search.set("earbuds under 50", &searchResult{products: someProducts("Bud", 1)})
	h.store.conversations[convID] = domain.Conversation{ID: convID, OwnerSubject: "user-1", SearchCount: 2, ThumbnailURL: "https://img/old.jpg"}
	h.store.messages[convID] = []domain.Message{
		{ID: "m1", ConversationID: convID, Role: domain.RoleUser, Content: "earbuds", Status: domain.MessageComplete},
		{ID: "m2", ConversationID: convID, Role: domain.RoleAssistant, Content: "Earlier summary", Status: domain.MessageComplete},
		{ID: "m3", ConversationID: convID, Role: domain.RoleAssistant, Status: domain.MessagePending},
	}

	out, err := h.run(t, SearchInput{Query: "cheaper please", ConversationID: convID, Locale: "en-GB"})
	require.NoError(t, err)
	require.Equal(t, convID, out.ConversationID)

	first := h.llm.calls[0]
	require.Len(t, first, 4)
	require.Equal(t, "earbuds", first[1].Content)
	require.Equal(t, "Earlier summary", first[2].Content)
	require.Equal(t, "cheaper please", first[3].Content)
	require.Contains(t, first[0].Content, "amazon.co.uk")
	require.Equal(t, "en-GB", h.search.requests[0].Locale)

	require.Len(t, h.store.thumbnails, 1)
	require.False(t, h.store.thumbnails[0].force)
}

func TestRun_NonFatalTailFailures(t *testing.T) {
	h := newHarness(t,
		toolCalls(searchCall("c1", "earbuds", "Budget")),
		finalReply(structuredAnswer),
	)
	h.search.set("earbuds", &searchResult{products: someProducts("Bud", 1)})
	h.store.aggregateErr = errors.New("throttled")
	h.limiter.recordErr = errors.New("redis down")

	_, err := h.run(t, SearchInput{Query: "earbuds"})
	require.NoError(t, err)
	h.sink.requireSingleTerminal(t, stream.EventDone)
	done := h.sink.last().payload.(stream.DoneEvent)
	require.Nil(t, done.RateLimit)
	require.Len(t, done.Categories, 1)
}

func TestRun_UnknownToolGetsErrorPayload(t *testing.T) {
	h := newHarness(t,
		toolCalls(domain.ToolCall{ID: "x", Name: "buy_now", Arguments: `{}`}),
		finalReply(structuredAnswer),
	)
	_, err := h.run(t, SearchInput{Query: "earbuds"})
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.llm.calls[1][3].Content), &payload))
	require.Contains(t, payload["error"], "unknown tool")
}

func TestAdmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status, err := h.svc.Admit(ctx, testUser)
	require.NoError(t, err)
	require.Equal(t, 5, status.Remaining)

	_, err = h.svc.Admit(ctx, domain.Identity{})
	require.Equal(t, ErrorAuthRequired, CodeOf(err))

	reset := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	h.limiter.decision = ratelimit.Decision{Status: domain.RateLimitStatus{Limit: 5, Remaining: 0, ResetAt: reset, Reason: ratelimit.ReasonGuestLimit}}
	_, err = h.svc.Admit(ctx, domain.Identity{Type: domain.IdentityAnon, Subject: "anon-1"})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorRateLimited, ue.Code)
	require.Equal(t, ratelimit.ReasonGuestLimit, ue.Reason)
	require.Equal(t, 0, ue.RateLimit.Remaining)
	require.Equal(t, reset, ue.RateLimit.ResetAt)
}

func TestValidate(t *testing.T) {
	h := newHarness(t)
	in, err := h.svc.Validate(SearchInput{Query: "  earbuds  "})
	require.NoError(t, err)
	require.Equal(t, "earbuds", in.Query)
	require.Equal(t, "en-US", in.Locale)

	for name, bad := range map[string]SearchInput{
		"empty":       {Query: "   "},
		"too long":    {Query: strings.Repeat("é", 501)},
		"bad conv id": {Query: "x", ConversationID: "not-a-uuid"},
		"long locale": {Query: "x", Locale: strings.Repeat("a", 20)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Validate(bad)
			require.Equal(t, ErrorInvalidInput, CodeOf(err))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", truncateRunes("abc", 80))
	require.Equal(t, "ééé", truncateRunes("éééé", 3))
}
