// Package events records the lifecycle history of letters, either directly
// in the database or through a Redis stream drained by a consumer.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noel-cartinhas/noel/internal/models"
)

const (
	StreamCartaEvents = "cartas:events"
	GroupAudit        = "noel-audit"
	SchemaVersionV1   = "v1"
)

// Event is one lifecycle transition of one letter.
type Event struct {
	ID           string                 `json:"id"`
	LetterNumber int                    `json:"letter_number"`
	Action       string                 `json:"action"`
	Actor        string                 `json:"actor"`
	Status       models.CartaStatus     `json:"status"`
	At           time.Time              `json:"at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(action string, letterNumber int, actor string, status models.CartaStatus) Event {
	return Event{
		ID:           uuid.NewString(),
		LetterNumber: letterNumber,
		Action:       action,
		Actor:        actor,
		Status:       status,
		At:           time.Now().UTC(),
	}
}

// Recorder accepts events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }
