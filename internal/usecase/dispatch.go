package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"shopping-agent/internal/domain"
	"shopping-agent/internal/integrations/productsearch"
	"shopping-agent/internal/logx"
	"shopping-agent/internal/stream"
)

const maxToolProducts = 10

type searchArgs struct {
	Query         string   `json:"query"`
	CategoryLabel string   `json:"categoryLabel"`
	Description   string   `json:"description"`
	MinPrice      *float64 `json:"minPrice"`
	MaxPrice      *float64 `json:"maxPrice"`
	SortBy        string   `json:"sortBy"`
}

func decodeSearchArgs(raw string) (searchArgs, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return searchArgs{}, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	args.Query = strings.TrimSpace(args.Query)
	args.CategoryLabel = strings.TrimSpace(args.CategoryLabel)
	args.Description = strings.TrimSpace(args.Description)
	args.SortBy = strings.TrimSpace(args.SortBy)
	switch {
	case args.Query == "":
		return searchArgs{}, errors.New("query is required")
	case args.CategoryLabel == "":
		return searchArgs{}, errors.New("categoryLabel is required")
	case args.MinPrice != nil && *args.MinPrice < 0:
		return searchArgs{}, errors.New("minPrice must not be negative")
	case args.MaxPrice != nil && *args.MaxPrice < 0:
		return searchArgs{}, errors.New("maxPrice must not be negative")
	case args.MinPrice != nil && args.MaxPrice != nil && *args.MinPrice > *args.MaxPrice:
		return searchArgs{}, errors.New("minPrice must not exceed maxPrice")
	case !productsearch.ValidSort(args.SortBy):
		return searchArgs{}, fmt.Errorf("sortBy must be one of %s", strings.Join(productsearch.SortKeys(), ", "))
	}
	return args, nil
}

// dispatch runs every tool call of one turn concurrently and returns the tool
// contents in call order. Only persistence failures are returned as errors.
func (s *SearchService) dispatch(ctx context.Context, run *runState, calls []domain.ToolCall, sink Sink) ([]string, error) {
	results := make([]string, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			content, err := s.executeCall(gctx, run, call, sink)
			if err != nil {
				return err
			}
			results[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SearchService) executeCall(ctx context.Context, run *runState, call domain.ToolCall, sink Sink) (string, error) {
	if call.Name != toolSearchProducts {
		return toolError("", fmt.Sprintf("unknown tool %q", call.Name)), nil
	}
	args, err := decodeSearchArgs(call.Arguments)
	if err != nil {
		return toolError("", err.Error()), nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.ToolTimeout)
	products, err := s.search.Search(sctx, productsearch.Request{
		Query:         args.Query,
		CategoryLabel: args.CategoryLabel,
		MinPrice:      args.MinPrice,
		MaxPrice:      args.MaxPrice,
		SortBy:        args.SortBy,
		Locale:        run.locale,
	})
	cancel()
	if err != nil {
		logx.Warn().Err(err).Str("tool_call_id", call.ID).Str("category", args.CategoryLabel).Msg("product search failed")
		return toolError(args.CategoryLabel, "search failed, try a different query"), nil
	}
	if len(products) == 0 {
		return toolZeroResults(args.CategoryLabel), nil
	}

	cat, stored, err := s.commitCategory(ctx, run, args, products, sink)
	if err != nil {
		return "", err
	}
	return toolSuccess(cat, stored), nil
}

// commitCategory persists a category and its products and emits it. Commits
// are serialized per run, so the next sort order is taken here.
func (s *SearchService) commitCategory(ctx context.Context, run *runState, args searchArgs, products []domain.Product, sink Sink) (domain.Category, []domain.Product, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	cat := domain.Category{
		ID:             newUUID(),
		ConversationID: run.conv.ID,
		MessageID:      run.messageID,
		Label:          args.CategoryLabel,
		Description:    args.Description,
		SearchQuery:    args.Query,
		SortOrder:      run.nextSort,
		ProductCount:   len(products),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertCategory(ctx, cat); err != nil {
		return domain.Category{}, nil, newError(ErrorInternal, "dynamodb_category_insert_error", err)
	}
	if err := s.store.InsertProducts(ctx, cat.ID, products); err != nil {
		return domain.Category{}, nil, newError(ErrorInternal, "dynamodb_product_insert_error", err)
	}
	stored, err := s.store.ListProducts(ctx, cat.ID)
	if err != nil {
		return domain.Category{}, nil, newError(ErrorInternal, "dynamodb_product_read_error", err)
	}
	run.nextSort++

	cat.ProductCount = len(stored)
	run.categories = append(run.categories, stream.CategoryRef{
		ID:           cat.ID,
		Label:        cat.Label,
		SortOrder:    cat.SortOrder,
		ProductCount: cat.ProductCount,
	})
	run.products += len(stored)
	if cat.SortOrder == 0 {
		run.firstProducts = stored
	}

	_ = sink.Category(stream.CategoryEvent{
		ID:          cat.ID,
		Label:       cat.Label,
		Description: cat.Description,
		SortOrder:   cat.SortOrder,
		Products:    stored,
	})
	return cat, stored, nil
}

type toolProduct struct {
	Title    string   `json:"title"`
	Price    string   `json:"price"`
	Rating   *float64 `json:"rating,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	Retailer string   `json:"retailer,omitempty"`
}

type toolResult struct {
	CategoryLabel string        `json:"categoryLabel,omitempty"`
	ProductCount  int           `json:"productCount"`
	Products      []toolProduct `json:"products,omitempty"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func toolSuccess(cat domain.Category, products []domain.Product) string {
	res := toolResult{CategoryLabel: cat.Label, ProductCount: len(products)}
	for i, p := range products {
		if i == maxToolProducts {
			break
		}
		price := p.PriceDisplay
		if price == "" {
			price = productsearch.FormatCents(p.PriceCents)
		}
		res.Products = append(res.Products, toolProduct{
			Title:    p.Title,
			Price:    price,
			Rating:   p.Rating,
			Brand:    p.Brand,
			Retailer: p.Retailer,
		})
	}
	return encodeToolResult(res)
}

func toolZeroResults(label string) string {
	return encodeToolResult(toolResult{
		CategoryLabel: label,
		Message:       "No products found. Try a broader query or a wider price range.",
	})
}

func toolError(label, msg string) string {
	return encodeToolResult(toolResult{CategoryLabel: label, Error: msg})
}

func encodeToolResult(res toolResult) string {
	b, err := json.Marshal(res)
	if err != nil {
		return `{"error":"internal encoding failure"}`
	}
	return string(b)
}
