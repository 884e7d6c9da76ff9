package usecase

import (
	"encoding/json"
	"strings"

	"shopping-agent/internal/domain"
)

const maxFollowUpOptions = 6

// FinalAnswer is the structured closing message of a search run.
type FinalAnswer struct {
	Summary          string
	Recommendations  []domain.Recommendation
	FollowUpQuestion *string
	FollowUpOptions  []string
}

func (a FinalAnswer) metadata() domain.MessageMetadata {
	return domain.MessageMetadata{
		Recommendations:  a.Recommendations,
		FollowUpQuestion: a.FollowUpQuestion,
		FollowUpOptions:  a.FollowUpOptions,
	}
}

type answerPayload struct {
	Summary          string          `json:"summary"`
	Recommendations  json.RawMessage `json:"recommendations"`
	FollowUpQuestion *string         `json:"followUpQuestion"`
	FollowUpOptions  []string        `json:"followUpOptions"`
}

// parseFinalAnswer extracts the answer object from model output. The object
// may be bare, fenced, or surrounded by prose. When no usable object is found
// it returns the raw text as the summary with empty collections and false.
func parseFinalAnswer(raw string) (FinalAnswer, bool) {
	fallback := FinalAnswer{
		Summary:         strings.TrimSpace(raw),
		Recommendations: []domain.Recommendation{},
		FollowUpOptions: []string{},
	}

	obj, ok := extractJSONObject(raw)
	if !ok {
		return fallback, false
	}
	var p answerPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return fallback, false
	}
	summary := strings.TrimSpace(p.Summary)
	if summary == "" {
		return fallback, false
	}

	out := FinalAnswer{
		Summary:         summary,
		Recommendations: decodeRecommendations(p.Recommendations),
		FollowUpOptions: make([]string, 0, len(p.FollowUpOptions)),
	}
	if p.FollowUpQuestion != nil {
		if q := strings.TrimSpace(*p.FollowUpQuestion); q != "" {
			out.FollowUpQuestion = &q
		}
	}
	for _, opt := range p.FollowUpOptions {
		if opt = strings.TrimSpace(opt); opt != "" && len(out.FollowUpOptions) < maxFollowUpOptions {
			out.FollowUpOptions = append(out.FollowUpOptions, opt)
		}
	}
	return out, true
}

// decodeRecommendations accepts either objects or bare title strings.
func decodeRecommendations(raw json.RawMessage) []domain.Recommendation {
	out := []domain.Recommendation{}
	if len(raw) == 0 {
		return out
	}
	var objs []domain.Recommendation
	if err := json.Unmarshal(raw, &objs); err == nil {
		for _, r := range objs {
			r.Title = strings.TrimSpace(r.Title)
			if r.Title != "" {
				out = append(out, r)
			}
		}
		return out
	}
	var titles []string
	if err := json.Unmarshal(raw, &titles); err == nil {
		for _, t := range titles {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, domain.Recommendation{Title: t})
			}
		}
	}
	return out
}

// extractJSONObject finds the first complete JSON object in s, looking inside
// a code fence first.
func extractJSONObject(s string) (string, bool) {
	for _, candidate := range []string{stripFence(s), s} {
		candidate = strings.TrimSpace(candidate)
		if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
			return candidate, true
		}
		for i := 0; i < len(candidate); i++ {
			if candidate[i] != '{' {
				continue
			}
			dec := json.NewDecoder(strings.NewReader(candidate[i:]))
			var obj json.RawMessage
			if err := dec.Decode(&obj); err == nil && len(obj) > 0 && obj[0] == '{' {
				return string(obj), true
			}
		}
	}
	return "", false
}

// stripFence returns the body of the first ``` fenced block, or s unchanged.
func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		if tag := strings.TrimSpace(body[:nl]); !strings.HasPrefix(tag, "{") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}
