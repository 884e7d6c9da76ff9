package usecase

import (
	"strings"

	"shopping-agent/internal/domain"
)

// pickThumbnail returns the image of the product whose title best matches
// the lead recommendation, or the first product image when none matches.
// Only products that carry an image are candidates.
func pickThumbnail(products []domain.Product, lead string) string {
	want := normalizeTitle(lead)
	best, bestScore := "", 0
	first := ""
	for _, p := range products {
		if p.ImageURL == "" {
			continue
		}
		if first == "" {
			first = p.ImageURL
		}
		if score := titleScore(want, normalizeTitle(p.Title)); score > bestScore {
			best, bestScore = p.ImageURL, score
		}
	}
	if best != "" {
		return best
	}
	return first
}

const (
	scoreExact    = 1 << 20
	scoreContains = 1 << 10
)

// titleScore ranks an exact match above containment, and containment above
// the number of shared words. Zero means no match.
func titleScore(want, got []string) int {
	if len(want) == 0 || len(got) == 0 {
		return 0
	}
	w, g := strings.Join(want, " "), strings.Join(got, " ")
	switch {
	case w == g:
		return scoreExact
	case strings.Contains(" "+g+" ", " "+w+" "), strings.Contains(" "+w+" ", " "+g+" "):
		return scoreContains
	}
	seen := make(map[string]bool, len(got))
	for _, t := range got {
		seen[t] = true
	}
	shared := 0
	for _, t := range want {
		if seen[t] {
			shared++
			seen[t] = false
		}
	}
	// A single shared word, such as the brand, is too weak to count.
	if shared < 2 && len(want) > 1 {
		return 0
	}
	return shared
}

func normalizeTitle(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}
