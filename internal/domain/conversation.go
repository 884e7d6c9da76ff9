package domain

import "time"

const (
	ConversationActive   = "active"
	ConversationArchived = "archived"

	MessagePending  = "pending"
	MessageComplete = "complete"
)

// Conversation is the root of one user's search thread. Counters only grow.
type Conversation struct {
	ID            string
	OwnerSubject  string
	Title         string
	Status        string
	CategoryCount int
	ProductCount  int
	SearchCount   int
	ThumbnailURL  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is a single persisted turn. Assistant messages are inserted with
// Status=pending and finalized exactly once.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Metadata       MessageMetadata
	Status         string
	CreatedAt      time.Time
}

// MessageMetadata carries the structured part of an assistant answer.
type MessageMetadata struct {
	Recommendations  []Recommendation `json:"recommendations"`
	FollowUpQuestion *string          `json:"followUpQuestion"`
	FollowUpOptions  []string         `json:"followUpOptions"`
}

// Recommendation is one product the model singles out in its final answer.
type Recommendation struct {
	Title         string `json:"title"`
	Reason        string `json:"reason,omitempty"`
	CategoryLabel string `json:"categoryLabel,omitempty"`
}

// Aggregates is an increment applied to a conversation's counters.
type Aggregates struct {
	Categories int
	Products   int
	Searches   int
}
