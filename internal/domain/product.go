package domain

import "time"

// Category is one model-chosen product grouping with its own query and
// result set. SortOrder reflects completion order within a search run.
type Category struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Label          string    `json:"label"`
	Description    string    `json:"description"`
	SearchQuery    string    `json:"searchQuery"`
	SortOrder      int       `json:"sortOrder"`
	ProductCount   int       `json:"productCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Product belongs to exactly one category and is never mutated after insert.
// PriceCents is nil when the upstream price is unknown.
type Product struct {
	ID           string    `json:"id"`
	CategoryID   string    `json:"categoryId"`
	Title        string    `json:"title"`
	PriceCents   *int64    `json:"priceCents"`
	PriceDisplay string    `json:"priceDisplay"`
	ImageURL     string    `json:"imageUrl"`
	AffiliateURL string    `json:"affiliateUrl"`
	Retailer     string    `json:"retailer"`
	Rating       *float64  `json:"rating"`
	ReviewCount  int       `json:"reviewCount"`
	Brand        string    `json:"brand"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RateLimitStatus describes a subject's quota at the time of a decision.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Reason    string    `json:"reason,omitempty"`
}
