package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"shopping-agent/internal/domain"
)

const (
	skMeta       = "META#"
	skPrefixMsg  = "MSG#"
	skPrefixCat  = "CAT#"
	skPrefixProd = "PROD#"

	// BatchWriteItem accepts at most 25 requests per call.
	maxBatchWrite    = 25
	maxBatchAttempts = 5
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyFinalized is returned when a message is no longer pending.
	ErrAlreadyFinalized = errors.New("repository: message already finalized")
)

var newID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

var batchBackoff = func(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 50 * time.Millisecond
}

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a single DynamoDB table holding conversations, messages,
// categories and products.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func msgSK(messageID string) string {
	return skPrefixMsg + messageID
}

func catPK(messageID string) string {
	return "MSG#" + messageID
}

func catSK(sortOrder int) string {
	return fmt.Sprintf("%s%04d", skPrefixCat, sortOrder)
}

func prodPK(categoryID string) string {
	return "CAT#" + categoryID
}

func prodSK(rank int) string {
	return fmt.Sprintf("%s%04d", skPrefixProd, rank)
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// CreateConversation inserts a new conversation row. It fails if the id is
// already taken.
func (c *Client) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	if conv.ID == "" {
		return errors.New("repository: CreateConversation: id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                conversationItem(conv),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateConversation: %w", err)
	}
	return nil
}

// GetConversation loads a conversation row, returning ErrNotFound when absent.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(convPK(conversationID), skMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, ErrNotFound
	}
	conv, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation decode: %w", err)
	}
	return conv, nil
}

// ListMessages returns up to limit of the most recent messages of a
// conversation in chronological order.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessages query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessages unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// InsertTurn writes the user message and the pending assistant placeholder in
// one transaction.
func (c *Client) InsertTurn(ctx context.Context, user, placeholder domain.Message) error {
	if user.ID == "" || placeholder.ID == "" || user.ConversationID == "" || placeholder.ConversationID == "" {
		return errors.New("repository: InsertTurn: conversation id and message ids are required")
	}
	userItem, err := messageItem(user)
	if err != nil {
		return fmt.Errorf("repository: InsertTurn: %w", err)
	}
	placeholderItem, err := messageItem(placeholder)
	if err != nil {
		return fmt.Errorf("repository: InsertTurn: %w", err)
	}
	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                userItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                placeholderItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: InsertTurn: %w", err)
	}
	return nil
}

// FinalizeMessage writes the assistant answer and flips status to complete.
// It succeeds at most once per message.
func (c *Client) FinalizeMessage(ctx context.Context, conversationID, messageID, content string, meta domain.MessageMetadata) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("repository: FinalizeMessage encode metadata: %w", err)
	}
	_, err = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(convPK(conversationID), msgSK(messageID)),
		UpdateExpression:    aws.String("SET #content = :content, #metadata = :metadata, #status = :complete"),
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#content":  "content",
			"#metadata": "metadata",
			"#status":   "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":content":  &types.AttributeValueMemberS{Value: content},
			":metadata": &types.AttributeValueMemberS{Value: string(encoded)},
			":complete": &types.AttributeValueMemberS{Value: domain.MessageComplete},
			":pending":  &types.AttributeValueMemberS{Value: domain.MessagePending},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyFinalized
		}
		return fmt.Errorf("repository: FinalizeMessage: %w", err)
	}
	return nil
}

// InsertCategory persists a category under its message. The sort order slot
// must be unused.
func (c *Client) InsertCategory(ctx context.Context, cat domain.Category) error {
	if cat.ID == "" || cat.MessageID == "" {
		return errors.New("repository: InsertCategory: category id and message id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                categoryItem(cat),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: InsertCategory: %w", err)
	}
	return nil
}

// InsertProducts writes products for a category in batches, preserving the
// given order. Missing ids are assigned.
func (c *Client) InsertProducts(ctx context.Context, categoryID string, products []domain.Product) error {
	if categoryID == "" {
		return errors.New("repository: InsertProducts: category id is required")
	}
	now := time.Now().UTC()
	requests := make([]types.WriteRequest, 0, len(products))
	for i, p := range products {
		if p.ID == "" {
			p.ID = newID()
		}
		p.CategoryID = categoryID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: productItem(p, i)},
		})
	}

	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		if err := c.batchWrite(ctx, requests[start:end]); err != nil {
			return fmt.Errorf("repository: InsertProducts: %w", err)
		}
	}
	return nil
}

func (c *Client) batchWrite(ctx context.Context, pending []types.WriteRequest) error {
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt >= maxBatchAttempts {
			return fmt.Errorf("%d items left unprocessed after %d attempts", len(pending), attempt)
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchBackoff(attempt)):
			}
		}
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{c.tableName: pending},
		})
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		pending = out.UnprocessedItems[c.tableName]
	}
	return nil
}

// ListProducts reads back a category's products in insertion order with a
// strongly consistent query.
func (c *Client) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: prodPK(categoryID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixProd},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(true),
	}

	var products []domain.Product
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListProducts query: %w", err)
		}
		for _, item := range out.Items {
			p, err := itemToProduct(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListProducts unmarshal: %w", err)
			}
			products = append(products, p)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return products, nil
}

// IncrementAggregates atomically adds delta to the conversation counters.
func (c *Client) IncrementAggregates(ctx context.Context, conversationID string, delta domain.Aggregates) error {
	if delta.Categories < 0 || delta.Products < 0 || delta.Searches < 0 {
		return errors.New("repository: IncrementAggregates: counters only grow")
	}
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(convPK(conversationID), skMeta),
		UpdateExpression:    aws.String("ADD categoryCount :cats, productCount :prods, searchCount :searches SET updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cats":     numAttr(int64(delta.Categories)),
			":prods":    numAttr(int64(delta.Products)),
			":searches": numAttr(int64(delta.Searches)),
			":now":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: IncrementAggregates: %w", err)
	}
	return nil
}

// SetThumbnail stores a preview image for the conversation. Unless force is
// set, an existing thumbnail is left untouched.
func (c *Client) SetThumbnail(ctx context.Context, conversationID, imageURL string, force bool) error {
	if strings.TrimSpace(imageURL) == "" {
		return nil
	}
	in := &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(convPK(conversationID), skMeta),
		UpdateExpression:    aws.String("SET thumbnailUrl = :url"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":url": &types.AttributeValueMemberS{Value: imageURL},
		},
	}
	if !force {
		in.ConditionExpression = aws.String("attribute_exists(PK) AND (attribute_not_exists(thumbnailUrl) OR thumbnailUrl = :empty)")
		in.ExpressionAttributeValues[":empty"] = &types.AttributeValueMemberS{Value: ""}
	}
	_, err := c.api.UpdateItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) && !force {
			return nil
		}
		return fmt.Errorf("repository: SetThumbnail: %w", err)
	}
	return nil
}

func conversationItem(conv domain.Conversation) map[string]types.AttributeValue {
	item := key(convPK(conv.ID), skMeta)
	item["id"] = &types.AttributeValueMemberS{Value: conv.ID}
	item["ownerSubject"] = &types.AttributeValueMemberS{Value: conv.OwnerSubject}
	item["title"] = &types.AttributeValueMemberS{Value: conv.Title}
	item["status"] = &types.AttributeValueMemberS{Value: conv.Status}
	item["categoryCount"] = numAttr(int64(conv.CategoryCount))
	item["productCount"] = numAttr(int64(conv.ProductCount))
	item["searchCount"] = numAttr(int64(conv.SearchCount))
	item["thumbnailUrl"] = &types.AttributeValueMemberS{Value: conv.ThumbnailURL}
	item["createdAt"] = timeAttr(conv.CreatedAt)
	item["updatedAt"] = timeAttr(conv.UpdatedAt)
	return item
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Conversation{}, err
	}
	owner, err := strAttr(item, "ownerSubject")
	if err != nil {
		return domain.Conversation{}, err
	}
	cats, err := optIntAttr(item, "categoryCount")
	if err != nil {
		return domain.Conversation{}, err
	}
	prods, err := optIntAttr(item, "productCount")
	if err != nil {
		return domain.Conversation{}, err
	}
	searches, err := optIntAttr(item, "searchCount")
	if err != nil {
		return domain.Conversation{}, err
	}
	title, _ := strAttr(item, "title")
	status, _ := strAttr(item, "status")
	thumb, _ := strAttr(item, "thumbnailUrl")
	return domain.Conversation{
		ID:            id,
		OwnerSubject:  owner,
		Title:         title,
		Status:        status,
		CategoryCount: cats,
		ProductCount:  prods,
		SearchCount:   searches,
		ThumbnailURL:  thumb,
		CreatedAt:     optTimeAttr(item, "createdAt"),
		UpdatedAt:     optTimeAttr(item, "updatedAt"),
	}, nil
}

func messageItem(msg domain.Message) (map[string]types.AttributeValue, error) {
	encoded, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	item := key(convPK(msg.ConversationID), msgSK(msg.ID))
	item["id"] = &types.AttributeValueMemberS{Value: msg.ID}
	item["conversationId"] = &types.AttributeValueMemberS{Value: msg.ConversationID}
	item["role"] = &types.AttributeValueMemberS{Value: msg.Role}
	item["content"] = &types.AttributeValueMemberS{Value: msg.Content}
	item["metadata"] = &types.AttributeValueMemberS{Value: string(encoded)}
	item["status"] = &types.AttributeValueMemberS{Value: msg.Status}
	item["createdAt"] = timeAttr(msg.CreatedAt)
	return item, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	convID, _ := strAttr(item, "conversationId")
	content, _ := strAttr(item, "content") // pending placeholders are empty
	status, _ := strAttr(item, "status")

	var meta domain.MessageMetadata
	if raw, _ := strAttr(item, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return domain.Message{}, fmt.Errorf("repository: decode metadata: %w", err)
		}
	}
	return domain.Message{
		ID:             id,
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
		Status:         status,
		CreatedAt:      optTimeAttr(item, "createdAt"),
	}, nil
}

func categoryItem(cat domain.Category) map[string]types.AttributeValue {
	item := key(catPK(cat.MessageID), catSK(cat.SortOrder))
	item["id"] = &types.AttributeValueMemberS{Value: cat.ID}
	item["conversationId"] = &types.AttributeValueMemberS{Value: cat.ConversationID}
	item["messageId"] = &types.AttributeValueMemberS{Value: cat.MessageID}
	item["label"] = &types.AttributeValueMemberS{Value: cat.Label}
	item["description"] = &types.AttributeValueMemberS{Value: cat.Description}
	item["searchQuery"] = &types.AttributeValueMemberS{Value: cat.SearchQuery}
	item["sortOrder"] = numAttr(int64(cat.SortOrder))
	item["productCount"] = numAttr(int64(cat.ProductCount))
	item["createdAt"] = timeAttr(cat.CreatedAt)
	return item
}

func productItem(p domain.Product, rank int) map[string]types.AttributeValue {
	item := key(prodPK(p.CategoryID), prodSK(rank))
	item["id"] = &types.AttributeValueMemberS{Value: p.ID}
	item["categoryId"] = &types.AttributeValueMemberS{Value: p.CategoryID}
	item["title"] = &types.AttributeValueMemberS{Value: p.Title}
	item["priceDisplay"] = &types.AttributeValueMemberS{Value: p.PriceDisplay}
	item["imageUrl"] = &types.AttributeValueMemberS{Value: p.ImageURL}
	item["affiliateUrl"] = &types.AttributeValueMemberS{Value: p.AffiliateURL}
	item["retailer"] = &types.AttributeValueMemberS{Value: p.Retailer}
	item["reviewCount"] = numAttr(int64(p.ReviewCount))
	item["brand"] = &types.AttributeValueMemberS{Value: p.Brand}
	item["createdAt"] = timeAttr(p.CreatedAt)
	if p.PriceCents != nil {
		item["priceCents"] = numAttr(*p.PriceCents)
	} else {
		item["priceCents"] = &types.AttributeValueMemberNULL{Value: true}
	}
	if p.Rating != nil {
		item["rating"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(*p.Rating, 'f', -1, 64)}
	} else {
		item["rating"] = &types.AttributeValueMemberNULL{Value: true}
	}
	return item
}

func itemToProduct(item map[string]types.AttributeValue) (domain.Product, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Product{}, err
	}
	title, err := strAttr(item, "title")
	if err != nil {
		return domain.Product{}, err
	}
	reviews, err := optIntAttr(item, "reviewCount")
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{ID: id, Title: title, ReviewCount: reviews, CreatedAt: optTimeAttr(item, "createdAt")}
	p.CategoryID, _ = strAttr(item, "categoryId")
	p.PriceDisplay, _ = strAttr(item, "priceDisplay")
	p.ImageURL, _ = strAttr(item, "imageUrl")
	p.AffiliateURL, _ = strAttr(item, "affiliateUrl")
	p.Retailer, _ = strAttr(item, "retailer")
	p.Brand, _ = strAttr(item, "brand")

	if n, ok := item["priceCents"].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return domain.Product{}, fmt.Errorf("repository: parse attribute %q: %w", "priceCents", err)
		}
		p.PriceCents = &v
	}
	if n, ok := item["rating"].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return domain.Product{}, fmt.Errorf("repository: parse attribute %q: %w", "rating", err)
		}
		p.Rating = &v
	}
	return p, nil
}

func numAttr(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func timeAttr(t time.Time) *types.AttributeValueMemberS {
	if t.IsZero() {
		t = time.Now()
	}
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

// optIntAttr treats a missing counter as zero.
func optIntAttr(item map[string]types.AttributeValue, key string) (int, error) {
	if _, ok := item[key]; !ok {
		return 0, nil
	}
	return intAttr(item, key)
}

func optTimeAttr(item map[string]types.AttributeValue, key string) time.Time {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
