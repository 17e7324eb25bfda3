package model

import (
	"context"
	"time"
)

// ConversationTurn is one persisted question/report pair. Turns are
// append-only; the pipeline appends after producing a report and reads a
// bounded window for rewrite context, never edits or deletes.
type ConversationTurn struct {
	TurnID         string    `json:"turn_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Report         string    `json:"report"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationRepository interface {
	// AppendTurn appends a completed turn to the conversation history.
	AppendTurn(ctx context.Context, turn ConversationTurn) error

	// ListRecent retrieves up to limit most recent turns for a
	// conversation, oldest first.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error)
}
