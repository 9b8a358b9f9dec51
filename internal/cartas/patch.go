package cartas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noel-cartinhas/noel/internal/models"
)

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a set Optional holding nothing.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Patch is a partial update. Only fields with Set are applied.
// is_delivered is not part of it: delivery follows the status.
type Patch struct {
	Name            Optional[string] `json:"name"`
	Sex             Optional[string] `json:"sex"`
	Age             Optional[int]    `json:"age"`
	GiftDescription Optional[string] `json:"gift_description"`
	Status          Optional[string] `json:"status"`
	Note            Optional[string] `json:"note"`
	AdopterEmail    Optional[string] `json:"adopter_email"`
	AttachmentURL   Optional[string] `json:"attachment_url"`
	ThumbnailURL    Optional[string] `json:"thumbnail_url"`
	GroupID         Optional[uint]   `json:"group_id"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.Name.Set && !p.Sex.Set && !p.Age.Set && !p.GiftDescription.Set && !p.Status.Set &&
		!p.Note.Set && !p.AdopterEmail.Set && !p.AttachmentURL.Set && !p.ThumbnailURL.Set && !p.GroupID.Set
}

// onlyClearsAttachments reports whether p does nothing but drop attachment
// references, the one change a deleted letter accepts.
func (p Patch) onlyClearsAttachments() bool {
	rest := p
	rest.AttachmentURL, rest.ThumbnailURL = Optional[string]{}, Optional[string]{}
	if !rest.Empty() || (!p.AttachmentURL.Set && !p.ThumbnailURL.Set) {
		return false
	}
	return blankToNil(p.AttachmentURL.Value) == nil && blankToNil(p.ThumbnailURL.Value) == nil
}

func (p Patch) apply(c *models.Carta, now time.Time) error {
	if p.Name.Set {
		name, err := required("name", p.Name)
		if err != nil {
			return err
		}
		c.Name = name
	}
	if p.Sex.Set {
		sex, err := ParseSex(deref(p.Sex.Value))
		if err != nil {
			return err
		}
		c.Sex = sex
	}
	if p.Age.Set {
		if p.Age.Value != nil && *p.Age.Value < 0 {
			return fmt.Errorf("%w: age cannot be negative", ErrValidation)
		}
		c.Age = p.Age.Value
	}
	if p.GiftDescription.Set {
		gift, err := required("gift_description", p.GiftDescription)
		if err != nil {
			return err
		}
		c.GiftDescription = gift
	}
	if p.Note.Set {
		c.Note = blankToNil(p.Note.Value)
	}
	if p.AdopterEmail.Set {
		c.AdopterEmail = blankToNil(p.AdopterEmail.Value)
		if c.AdopterEmail != nil {
			email := normaliseEmail(*c.AdopterEmail)
			c.AdopterEmail = &email
		}
	}
	if p.AttachmentURL.Set {
		c.AttachmentURL = blankToNil(p.AttachmentURL.Value)
	}
	if p.ThumbnailURL.Set {
		c.ThumbnailURL = blankToNil(p.ThumbnailURL.Value)
	}
	if p.GroupID.Set {
		c.GroupID = p.GroupID.Value
	}

	if p.Status.Set {
		status, err := ParseStatus(deref(p.Status.Value))
		if err != nil {
			return err
		}
		c.Status = status
		switch status {
		case models.StatusDelivered:
			if c.DeliveredAt == nil {
				c.DeliveredAt = &now
			}
		case models.StatusAvailable, models.StatusCancelled:
			// Moving back to an unadopted state implies dropping the adopter
			// unless the patch names one explicitly.
			if !p.AdopterEmail.Set {
				c.AdopterEmail = nil
			}
		}
	}
	return nil
}

// ParseSex accepts M or F in any case.
func ParseSex(raw string) (string, error) {
	switch s := strings.ToUpper(strings.TrimSpace(raw)); s {
	case "M", "F":
		return s, nil
	}
	return "", fmt.Errorf("%w: sex must be M or F", ErrValidation)
}

func required(field string, o Optional[string]) (string, error) {
	v := strings.TrimSpace(deref(o.Value))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
