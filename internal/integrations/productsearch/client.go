package productsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shopping-agent/internal/domain"
)

const (
	defaultBaseURL    = "https://real-time-amazon-data.p.rapidapi.com"
	defaultSecretName = "search-token"
	maxResults        = 30
)

// Sort keys accepted from the model, mapped to upstream values.
var sortValues = map[string]string{
	"relevance":  "RELEVANCE",
	"price_asc":  "LOWEST_PRICE",
	"price_desc": "HIGHEST_PRICE",
	"rating":     "REVIEWS",
	"newest":     "NEWEST",
}

// ValidSort reports whether s is an accepted sort key. Empty means relevance.
func ValidSort(s string) bool {
	if s == "" {
		return true
	}
	_, ok := sortValues[s]
	return ok
}

// SortKeys lists the accepted sort keys, for tool schemas.
func SortKeys() []string {
	return []string{"relevance", "price_asc", "price_desc", "rating", "newest"}
}

// TokenSource resolves API credentials by name.
type TokenSource interface {
	Token(ctx context.Context, name string) (string, error)
}

// Request is one category query from the agent. Prices are major units.
type Request struct {
	Query         string
	CategoryLabel string
	MinPrice      *float64
	MaxPrice      *float64
	SortBy        string
	Locale        string
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("productsearch: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client queries the upstream product search API.
type Client struct {
	baseURL      string
	host         string
	httpClient   *http.Client
	tokens       TokenSource
	secretName   string
	affiliateTag string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if v := strings.TrimRight(strings.TrimSpace(baseURL), "/"); v != "" {
			c.baseURL = v
		}
	}
}

func WithHost(host string) Option {
	return func(c *Client) {
		c.host = strings.TrimSpace(host)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithAffiliateTag(tag string) Option {
	return func(c *Client) {
		c.affiliateTag = strings.TrimSpace(tag)
	}
}

// NewClient creates a search Client; the API key is resolved per call
// through tokens.
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("productsearch: token source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		secretName: defaultSecretName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.host == "" {
		if u, err := url.Parse(c.baseURL); err == nil {
			c.host = u.Host
		}
	}
	return c, nil
}

type searchResponse struct {
	Status string `json:"status"`
	Data   struct {
		Products []upstreamProduct `json:"products"`
	} `json:"data"`
}

type upstreamProduct struct {
	ASIN       string     `json:"asin"`
	Title      string     `json:"product_title"`
	Price      flexString `json:"product_price"`
	URL        string     `json:"product_url"`
	Photo      string     `json:"product_photo"`
	StarRating flexString `json:"product_star_rating"`
	NumRatings int        `json:"product_num_ratings"`
	Brand      string     `json:"brand"`
	ByLine     string     `json:"product_byline"`
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Search runs one category query and returns normalized, price-filtered
// products in upstream order.
func (c *Client) Search(ctx context.Context, req Request) ([]domain.Product, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("productsearch: query is required")
	}
	key, err := c.tokens.Token(ctx, c.secretName)
	if err != nil {
		return nil, fmt.Errorf("productsearch: resolve api key: %w", err)
	}

	market := ResolveLocale(req.Locale)
	params := url.Values{}
	params.Set("query", query)
	params.Set("country", strings.ToUpper(market.Country))
	params.Set("language", market.Language)
	params.Set("page", "1")
	if v, ok := sortValues[req.SortBy]; ok {
		params.Set("sort_by", v)
	} else {
		params.Set("sort_by", sortValues["relevance"])
	}

	endpoint := c.baseURL + "/search?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("productsearch: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-RapidAPI-Key", key)
	if c.host != "" {
		httpReq.Header.Set("X-RapidAPI-Host", c.host)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("productsearch: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var payload searchResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("productsearch: decode response: %w", err)
	}
	if payload.Status != "" && !strings.EqualFold(payload.Status, "OK") {
		return nil, fmt.Errorf("productsearch: upstream status %q", payload.Status)
	}

	products := make([]domain.Product, 0, len(payload.Data.Products))
	for _, p := range payload.Data.Products {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		products = append(products, c.normalize(p, market))
		if len(products) == maxResults {
			break
		}
	}
	return FilterByPrice(products, MajorToCents(req.MinPrice), MajorToCents(req.MaxPrice)), nil
}

func (c *Client) normalize(p upstreamProduct, market Marketplace) domain.Product {
	price := strings.TrimSpace(string(p.Price))
	link := p.URL
	if link == "" && p.ASIN != "" {
		link = "https://www." + market.Domain + "/dp/" + url.PathEscape(p.ASIN)
	}
	brand := strings.TrimSpace(p.Brand)
	if brand == "" {
		brand = brandFromByline(p.ByLine)
	}
	return domain.Product{
		Title:        strings.TrimSpace(p.Title),
		PriceCents:   ParsePriceCents(price),
		PriceDisplay: price,
		ImageURL:     p.Photo,
		AffiliateURL: appendAffiliateTag(link, c.affiliateTag),
		Retailer:     market.Domain,
		Rating:       parseRating(string(p.StarRating)),
		ReviewCount:  p.NumRatings,
		Brand:        brand,
	}
}

// brandFromByline extracts "Acme" from bylines such as "Visit the Acme Store"
// or "Brand: Acme".
func brandFromByline(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "Visit the ") && strings.HasSuffix(s, " Store"):
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "Visit the "), " Store"))
	case strings.HasPrefix(s, "Brand:"):
		return strings.TrimSpace(strings.TrimPrefix(s, "Brand:"))
	}
	return ""
}

// FormatCents renders minor units for model-facing summaries.
func FormatCents(v *int64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(float64(*v)/100, 'f', 2, 64)
}
