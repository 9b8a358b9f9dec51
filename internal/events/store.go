package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists events in carta_events.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record inserts e. Replaying an event id already stored is a no-op, so a
// stream message delivered twice yields one row.
func (s *Store) Record(ctx context.Context, e Event) error {
	row := models.CartaEvent{
		EventID:      e.ID,
		LetterNumber: e.LetterNumber,
		Action:       e.Action,
		ActorEmail:   e.Actor,
		Status:       e.Status,
		CreatedAt:    e.At,
	}
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		row.Payload = datatypes.JSON(raw)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store event %s: %w", e.ID, err)
	}
	return nil
}

// History returns the events of one letter, oldest first.
func (s *Store) History(ctx context.Context, letterNumber int) ([]models.CartaEvent, error) {
	var out []models.CartaEvent
	err := s.db.WithContext(ctx).
		Where("letter_number = ?", letterNumber).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of carta %d: %w", letterNumber, err)
	}
	return out, nil
}
