package productsearch

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"shopping-agent/internal/domain"
)

// ParsePriceCents strips everything but digits and '.', parses the rest as a
// float and rounds to minor units. Unparseable or out-of-range input yields
// nil.
func ParsePriceCents(s string) *int64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil
	}
	return toCents(f)
}

// MajorToCents converts a model-supplied major-unit bound to minor units.
// Bounds outside the int64 range are treated as absent.
func MajorToCents(v *float64) *int64 {
	if v == nil {
		return nil
	}
	return toCents(*v)
}

// maxCents is the largest float64 that converts to int64 without overflow.
const maxCents = float64(1<<63 - 1024)

func toCents(major float64) *int64 {
	f := math.Round(major * 100)
	if math.IsNaN(f) || f > maxCents || f < -maxCents {
		return nil
	}
	cents := int64(f)
	return &cents
}

// FilterByPrice keeps products within [minCents, maxCents]. A product with an
// unknown price always passes; relative order is preserved.
func FilterByPrice(products []domain.Product, minCents, maxCents *int64) []domain.Product {
	if minCents == nil && maxCents == nil {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.PriceCents != nil {
			if minCents != nil && *p.PriceCents < *minCents {
				continue
			}
			if maxCents != nil && *p.PriceCents > *maxCents {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// appendAffiliateTag appends tag=<tag> unless the URL already carries one.
func appendAffiliateTag(raw, tag string) string {
	if raw == "" || tag == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("tag") {
		return raw
	}
	q.Set("tag", tag)
	u.RawQuery = q.Encode()
	return u.String()
}

func parseRating(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 || f > 5 {
		return nil
	}
	return &f
}
