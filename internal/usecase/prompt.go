package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/integrations/productsearch"
)

const toolSearchProducts = "search_products"

type promptContext struct {
	locale   string
	maxLoops int
	now      time.Time
}

func buildPromptMessages(ctx promptContext, query string, history []domain.Message) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildSystemPrompt(ctx)},
	}
	for _, m := range history {
		if msg, ok := historyToPromptMessage(m); ok {
			messages = append(messages, msg)
		}
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: query})
}

func buildSystemPrompt(ctx promptContext) string {
	market := productsearch.ResolveLocale(ctx.locale)
	return strings.Join([]string{
		"Role:",
		"You are a shopping assistant that helps the user find products to buy.",
		"",
		"Task:",
		"Break the user's request into 2 to 4 distinct product categories and call " + toolSearchProducts + " once per category.",
		"Issue all category searches in the same turn so they run in parallel.",
		fmt.Sprintf("You have at most %d turns. Refine with another search only when a category returned nothing useful.", ctx.maxLoops),
		"",
		"Context:",
		fmt.Sprintf("- Marketplace: %s (%s)", market.Domain, strings.ToUpper(market.Country)),
		"- Today: " + ctx.now.UTC().Format("2006-01-02"),
		"- Prices passed to the tool are in the marketplace currency, major units.",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Only recommend products returned by " + toolSearchProducts + " in this conversation.",
		"2) Never invent prices, ratings or availability.",
		"3) Respect any budget the user states by passing minPrice and maxPrice.",
		"4) Keep category labels short (1 to 4 words) and distinct.",
		"5) If the request is not about shopping, answer briefly without calling tools.",
	}, "\n")
}

func outputContract() string {
	return "When you are done searching, reply with JSON only using the keys " +
		"summary (string, 2 to 4 sentences), " +
		"recommendations (array of {title, reason, categoryLabel}, at most 3), " +
		"followUpQuestion (string or null) and " +
		"followUpOptions (array of up to 4 short answers to the follow-up question)."
}

func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	if m.Status != domain.MessageComplete {
		return domain.ChatMessage{}, false
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return domain.ChatMessage{}, false
	}
	switch m.Role {
	case domain.RoleUser:
		return domain.ChatMessage{Role: domain.RoleUser, Content: content}, true
	case domain.RoleAssistant:
		return domain.ChatMessage{Role: domain.RoleAssistant, Content: content}, true
	}
	return domain.ChatMessage{}, false
}

func searchProductsTool() domain.ToolDefinition {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search keywords for this category, e.g. \"noise cancelling earbuds\".",
			},
			"categoryLabel": map[string]any{
				"type":        "string",
				"description": "Short display label for the category.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "One sentence on why this category fits the request.",
			},
			"minPrice": map[string]any{"type": "number", "minimum": 0},
			"maxPrice": map[string]any{"type": "number", "minimum": 0},
			"sortBy": map[string]any{
				"type": "string",
				"enum": productsearch.SortKeys(),
			},
		},
		"required":             []string{"query", "categoryLabel"},
		"additionalProperties": false,
	}
	params, _ := json.Marshal(schema)
	return domain.ToolDefinition{
		Name:        toolSearchProducts,
		Description: "Search the marketplace for one product category and return the top matches.",
		Parameters:  params,
	}
}
