package cartas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/gorm"
)

const (
	maxCASAttempts = 3
	defaultLimit   = 100
	maxLimit       = 1000
)

// Repository stores letters. Every state change goes through Apply.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Filter narrows List.
type Filter struct {
	Status         ListStatus
	Query          string
	Requester      string
	IncludeDeleted bool
	Skip           int
	Limit          int
}

// CreateInput carries the fields an administrator or an import supplies.
type CreateInput struct {
	LetterNumber    *int    `json:"letter_number"`
	Name            string  `json:"name"`
	Sex             string  `json:"sex"`
	Age             *int    `json:"age"`
	GiftDescription string  `json:"gift_description"`
	Note            *string `json:"note"`
	GroupID         *uint   `json:"group_id"`
	AttachmentURL   *string `json:"attachment_url"`
}

// AttachmentRef is the attachment state of one live letter.
type AttachmentRef struct {
	LetterNumber  int
	AttachmentURL string
	ThumbnailURL  string
}

// GetByNumber loads a letter, deleted or not.
func (r *Repository) GetByNumber(ctx context.Context, n int) (*models.Carta, error) {
	var c models.Carta
	if err := r.db.WithContext(ctx).Preload("Group").Where("letter_number = ?", n).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, n)
		}
		return nil, fmt.Errorf("failed to load carta %d: %w", n, err)
	}
	return &c, nil
}

// GetLive loads a letter and treats a deleted one as missing.
func (r *Repository) GetLive(ctx context.Context, n int) (*models.Carta, error) {
	c, err := r.GetByNumber(ctx, n)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, fmt.Errorf("%w: %d is deleted", ErrNotFound, n)
	}
	return c, nil
}

// List returns one page, newest first, and the total matching count.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Carta, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Carta{})
	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}

	switch f.Status {
	case ListAvailable:
		q = q.Where("adopter_email IS NULL AND status = ? AND is_delivered = ?", models.StatusAvailable, false)
	case ListAdopted:
		q = q.Where("adopter_email IS NOT NULL AND status = ?", models.StatusAdopted)
	case ListDelivered:
		q = q.Where("(is_delivered = ? OR status = ?)", true, models.StatusDelivered)
	case ListMine:
		q = q.Where("adopter_email = ?", normaliseEmail(f.Requester))
	}

	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where(
			`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(gift_description) LIKE ? ESCAPE '\' OR LOWER(COALESCE(note, '')) LIKE ? ESCAPE '\')`,
			like, like, like,
		)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count cartas: %w", err)
	}

	var out []models.Carta
	err := q.Session(&gorm.Session{}).
		Preload("Group").
		Order("id DESC").
		Offset(max(f.Skip, 0)).
		Limit(clampLimit(f.Limit)).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cartas: %w", err)
	}
	return out, total, nil
}

// Count returns the number of live letters.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Carta{}).Where("is_deleted = ?", false).Count(&n).Error
	return n, err
}

// Create inserts a new available letter. Without a number it takes the
// highest existing number plus one, deleted letters included.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*models.Carta, error) {
	c, err := newCarta(in)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.LetterNumber == nil {
			var highest int
			if err := tx.Model(&models.Carta{}).Select("COALESCE(MAX(letter_number), 0)").Scan(&highest).Error; err != nil {
				return err
			}
			c.LetterNumber = highest + 1
		} else {
			var taken int64
			if err := tx.Model(&models.Carta{}).Where("letter_number = ?", *in.LetterNumber).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return fmt.Errorf("%w: letter number %d already in use", ErrValidation, *in.LetterNumber)
			}
			c.LetterNumber = *in.LetterNumber
		}

		now := r.now()
		c.CreatedAt, c.UpdatedAt = now, now
		if err := tx.Create(c).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: letter number %d already in use", ErrValidation, c.LetterNumber)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create carta: %w", err)
	}
	return c, nil
}

func newCarta(in CreateInput) (*models.Carta, error) {
	name, err := required("name", Some(in.Name))
	if err != nil {
		return nil, err
	}
	gift, err := required("gift_description", Some(in.GiftDescription))
	if err != nil {
		return nil, err
	}
	sex, err := ParseSex(in.Sex)
	if err != nil {
		return nil, err
	}
	if in.LetterNumber != nil && *in.LetterNumber <= 0 {
		return nil, fmt.Errorf("%w: letter number must be positive", ErrValidation)
	}
	if in.Age != nil && *in.Age < 0 {
		return nil, fmt.Errorf("%w: age cannot be negative", ErrValidation)
	}

	return &models.Carta{
		Name:            name,
		Sex:             sex,
		Age:             in.Age,
		GiftDescription: gift,
		Note:            blankToNil(in.Note),
		GroupID:         in.GroupID,
		AttachmentURL:   blankToNil(in.AttachmentURL),
		Status:          models.StatusAvailable,
	}, nil
}

// Apply runs t against letter n as a compare-and-swap on the version
// column. When another writer wins the race the row is reloaded and the
// guard evaluated again, so the loser sees the new state.
func (r *Repository) Apply(ctx context.Context, n int, t Transition) (*models.Carta, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := r.GetByNumber(ctx, n)
		if err != nil {
			return nil, err
		}

		next := *current
		now := r.now()
		if err := t.Apply(&next, now); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		res := r.db.WithContext(ctx).Model(&models.Carta{}).
			Where("id = ? AND version = ?", current.ID, current.Version).
			Updates(mutableColumns(&next))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to %s carta %d: %w", t.Op, n, res.Error)
		}
		if res.RowsAffected == 1 {
			return r.GetByNumber(ctx, n)
		}
	}
	return nil, fmt.Errorf("%w: %s on carta %d", ErrConflict, t.Op, n)
}

func mutableColumns(c *models.Carta) map[string]interface{} {
	return map[string]interface{}{
		"name":               c.Name,
		"sex":                c.Sex,
		"age":                c.Age,
		"gift_description":   c.GiftDescription,
		"status":             string(c.Status),
		"note":               c.Note,
		"adopter_email":      c.AdopterEmail,
		"attachment_url":     c.AttachmentURL,
		"thumbnail_url":      c.ThumbnailURL,
		"group_id":           c.GroupID,
		"is_deleted":         c.IsDeleted,
		"deleted_at":         c.DeletedAt,
		"is_delivered":       c.IsDelivered,
		"delivered_by_email": c.DeliveredByEmail,
		"delivered_at":       c.DeliveredAt,
		"version":            c.Version,
		"updated_at":         c.UpdatedAt,
	}
}

// ActiveAttachments lists attachment references of live letters.
func (r *Repository) ActiveAttachments(ctx context.Context) ([]AttachmentRef, error) {
	var rows []models.Carta
	err := r.db.WithContext(ctx).
		Select("letter_number", "attachment_url", "thumbnail_url").
		Where("is_deleted = ?", false).
		Where("attachment_url IS NOT NULL OR thumbnail_url IS NOT NULL").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	refs := make([]AttachmentRef, 0, len(rows))
	for _, c := range rows {
		refs = append(refs, AttachmentRef{
			LetterNumber:  c.LetterNumber,
			AttachmentURL: deref(c.AttachmentURL),
			ThumbnailURL:  deref(c.ThumbnailURL),
		})
	}
	return refs, nil
}

// ClearDeletedAttachments drops attachment references of letter n when it
// is soft-deleted. It reports whether anything was cleared.
func (r *Repository) ClearDeletedAttachments(ctx context.Context, n int) (bool, error) {
	c, err := r.GetByNumber(ctx, n)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !c.IsDeleted || (c.AttachmentURL == nil && c.ThumbnailURL == nil) {
		return false, nil
	}

	patch := Patch{AttachmentURL: Null[string](), ThumbnailURL: Null[string]()}
	if _, err := r.Apply(ctx, n, Update("system", patch)); err != nil {
		return false, err
	}
	return true, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
