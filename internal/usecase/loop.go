package usecase

import (
	"context"
	"net/http"
	"strings"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/logx"
)

type loopPhase string

const (
	phaseIdle           loopPhase = "idle"
	phaseAwaitingModel  loopPhase = "awaiting_model"
	phaseExecutingTools loopPhase = "executing_tools"
	phaseFinalizing     loopPhase = "finalizing"
	phaseDone           loopPhase = "done"
	phaseFailed         loopPhase = "failed"
)

type loopState struct {
	phase    loopPhase
	turn     int
	messages []domain.ChatMessage
}

func (st *loopState) enter(p loopPhase) {
	logx.Debug().Str("from", string(st.phase)).Str("to", string(p)).Int("turn", st.turn).Msg("agent loop transition")
	st.phase = p
}

// runLoop alternates model calls and tool dispatch until the model answers
// without tool calls or the turn budget is spent.
func (s *SearchService) runLoop(ctx context.Context, run *runState, messages []domain.ChatMessage, sink Sink) (FinalAnswer, error) {
	st := &loopState{phase: phaseIdle, messages: messages}
	tools := []domain.ToolDefinition{searchProductsTool()}

	for st.turn = 1; st.turn <= s.opts.MaxLoops; st.turn++ {
		st.enter(phaseAwaitingModel)
		completion, err := s.llm.ChatWithTools(ctx, s.opts.Model, st.messages, tools)
		if err != nil {
			st.enter(phaseFailed)
			if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
				return FinalAnswer{}, newError(ErrorUpstream, "openai_rate_limited", err)
			}
			return FinalAnswer{}, newError(ErrorUpstream, "openai_error", err)
		}

		if len(completion.ToolCalls) == 0 {
			st.enter(phaseFinalizing)
			answer := s.finalAnswer(run, completion.Content)
			st.enter(phaseDone)
			return answer, nil
		}

		st.enter(phaseExecutingTools)
		st.messages = append(st.messages, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		_ = sink.Status("Searching " + describeCount(len(completion.ToolCalls), "category", "categories") + "…")

		results, err := s.dispatch(ctx, run, completion.ToolCalls, sink)
		if err != nil {
			st.enter(phaseFailed)
			return FinalAnswer{}, err
		}
		for i, call := range completion.ToolCalls {
			st.messages = append(st.messages, domain.ChatMessage{
				Role:       domain.RoleTool,
				Content:    results[i],
				ToolCallID: call.ID,
			})
		}
	}

	st.enter(phaseFinalizing)
	logx.Info().Int("max_loops", s.opts.MaxLoops).Str("conversation_id", run.conv.ID).
		Msg("agent loop exhausted, using default summary")
	answer := defaultAnswer(run)
	st.enter(phaseDone)
	return answer, nil
}

func (s *SearchService) finalAnswer(run *runState, content string) FinalAnswer {
	if strings.TrimSpace(content) == "" {
		return defaultAnswer(run)
	}
	answer, ok := parseFinalAnswer(content)
	if !ok {
		logx.Warn().Str("conversation_id", run.conv.ID).Int("content_len", len(content)).
			Msg("final answer was not structured, using raw text")
	}
	return answer
}

func defaultAnswer(run *runState) FinalAnswer {
	run.mu.Lock()
	n := len(run.categories)
	run.mu.Unlock()

	summary := "I couldn't find products matching your request. Try rephrasing it or widening your budget."
	if n > 0 {
		summary = "Here are the products I found across " + describeCount(n, "category", "categories") + "."
	}
	return FinalAnswer{
		Summary:         summary,
		Recommendations: []domain.Recommendation{},
		FollowUpOptions: []string{},
	}
}
