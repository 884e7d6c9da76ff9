package streamclient

import "time"

// Request is the body of POST /search.
type Request struct {
	ConversationID string `json:"conversationId,omitempty"`
	Query          string `json:"query"`
	Locale         string `json:"locale,omitempty"`
}

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

// Category is the payload of a category frame.
type Category struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sortOrder"`
	Products    []Product `json:"products"`
}

type Recommendation struct {
	Title         string `json:"title"`
	Reason        string `json:"reason"`
	CategoryLabel string `json:"categoryLabel"`
}

// Summary is the payload of a summary frame.
type Summary struct {
	Content          string           `json:"content"`
	Recommendations  []Recommendation `json:"recommendations"`
	FollowUpQuestion *string          `json:"followUpQuestion"`
	FollowUpOptions  []string         `json:"followUpOptions"`
}

type CategoryRef struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	SortOrder    int    `json:"sortOrder"`
	ProductCount int    `json:"productCount"`
}

type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Reason    string    `json:"reason,omitempty"`
}

// Done is the payload of the terminal done frame.
type Done struct {
	ConversationID string        `json:"conversationId"`
	MessageID      string        `json:"messageId"`
	Categories     []CategoryRef `json:"categories"`
	RateLimit      *RateLimit    `json:"rateLimit,omitempty"`
}

// Handlers receive frames as they arrive. Nil callbacks are skipped.
type Handlers struct {
	OnStatus   func(text string)
	OnCategory func(Category)
	OnSummary  func(Summary)
	OnDone     func(Done)
	OnError    func(message string)
}

// Result is the aggregate of one completed stream.
type Result struct {
	ConversationID string
	MessageID      string
	Categories     []Category
	Refs           []CategoryRef
	Summary        *Summary
	RateLimit      *RateLimit
	Statuses       []string
}

// ProductCount sums the products across received categories.
func (r *Result) ProductCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.Products)
	}
	return n
}
