package cartas

import (
	"fmt"
	"strings"
	"time"

	"github.com/noel-cartinhas/noel/internal/models"
)

// Operation names, used for rejections, events and metrics.
const (
	OpCreate    = "create"
	OpAdopt     = "adopt"
	OpCancel    = "cancel"
	OpRelease   = "release"
	OpDeliver   = "deliver"
	OpUndeliver = "undeliver"
	OpDelete    = "delete"
	OpUpdate    = "update"
	OpThumbnail = "thumbnail"
)

// Transition is a guarded mutation of one letter. Apply checks the guard
// against the loaded row and, when it holds, mutates c in place. It must
// not touch the database and must be safe to run again on a reloaded row.
type Transition struct {
	Op    string
	Actor string
	Apply func(c *models.Carta, now time.Time) error
}

func rejected(op string, c *models.Carta, reason string) error {
	return &RejectedError{Op: op, LetterNumber: c.LetterNumber, Reason: reason}
}

func requireLive(c *models.Carta) error {
	if c.IsDeleted {
		return fmt.Errorf("%w: carta %d is deleted", ErrNotFound, c.LetterNumber)
	}
	return nil
}

func clearDelivery(c *models.Carta) {
	c.IsDelivered = false
	c.DeliveredByEmail = nil
	c.DeliveredAt = nil
}

func release(c *models.Carta) {
	c.AdopterEmail = nil
	c.Status = models.StatusAvailable
	clearDelivery(c)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Adopt assigns an available letter to email.
func Adopt(email string) Transition {
	email = normaliseEmail(email)
	return Transition{Op: OpAdopt, Actor: email, Apply: func(c *models.Carta, _ time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		switch {
		case email == "":
			return fmt.Errorf("%w: adopter email is required", ErrValidation)
		case c.AdopterEmail != nil:
			return rejected(OpAdopt, c, "already adopted")
		case c.Delivered():
			return rejected(OpAdopt, c, "already delivered")
		case c.Status != models.StatusAvailable:
			return rejected(OpAdopt, c, "status is "+string(c.Status))
		}
		c.AdopterEmail = &email
		c.Status = models.StatusAdopted
		clearDelivery(c)
		return nil
	}}
}

// Cancel lets the adopter give a letter back before delivery.
func Cancel(requester string) Transition {
	requester = normaliseEmail(requester)
	return Transition{Op: OpCancel, Actor: requester, Apply: func(c *models.Carta, _ time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		if !c.AdoptedBy(requester) {
			return rejected(OpCancel, c, "not adopted by "+requester)
		}
		if c.Delivered() {
			return rejected(OpCancel, c, "already delivered")
		}
		release(c)
		return nil
	}}
}

// Release frees a letter. Administrators may release any letter, including
// delivered ones; everybody else only their own.
func Release(requester string, isAdmin bool) Transition {
	requester = normaliseEmail(requester)
	return Transition{Op: OpRelease, Actor: requester, Apply: func(c *models.Carta, _ time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		if !isAdmin && !c.AdoptedBy(requester) {
			return rejected(OpRelease, c, "not adopted by "+requester)
		}
		release(c)
		return nil
	}}
}

// Deliver records that an adopted letter's gift arrived.
func Deliver(admin string) Transition {
	admin = normaliseEmail(admin)
	return Transition{Op: OpDeliver, Actor: admin, Apply: func(c *models.Carta, now time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		if c.Status != models.StatusAdopted || c.AdopterEmail == nil {
			return rejected(OpDeliver, c, "not adopted")
		}
		c.Status = models.StatusDelivered
		c.IsDelivered = true
		c.DeliveredByEmail = &admin
		c.DeliveredAt = &now
		return nil
	}}
}

// Undeliver reverts a delivery.
func Undeliver(actor string) Transition {
	return Transition{Op: OpUndeliver, Actor: normaliseEmail(actor), Apply: func(c *models.Carta, _ time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		if !c.Delivered() {
			return rejected(OpUndeliver, c, "not delivered")
		}
		if c.AdopterEmail != nil {
			c.Status = models.StatusAdopted
		} else {
			c.Status = models.StatusAvailable
		}
		clearDelivery(c)
		return nil
	}}
}

// SoftDelete hides a letter. Attachments are kept.
func SoftDelete(actor string) Transition {
	return Transition{Op: OpDelete, Actor: normaliseEmail(actor), Apply: func(c *models.Carta, now time.Time) error {
		if c.IsDeleted {
			return rejected(OpDelete, c, "already deleted")
		}
		c.IsDeleted = true
		c.DeletedAt = &now
		return nil
	}}
}

// Update merges p into the letter.
func Update(actor string, p Patch) Transition {
	return Transition{Op: OpUpdate, Actor: normaliseEmail(actor), Apply: func(c *models.Carta, now time.Time) error {
		if c.IsDeleted && !p.onlyClearsAttachments() {
			return rejected(OpUpdate, c, "carta is deleted")
		}
		if err := p.apply(c, now); err != nil {
			return err
		}
		return checkConsistency(c)
	}}
}

// AttachThumbnail points the letter at thumb, provided it still holds
// objectName as its attachment.
func AttachThumbnail(objectName, thumb string) Transition {
	return Transition{Op: OpThumbnail, Actor: "system", Apply: func(c *models.Carta, _ time.Time) error {
		if err := requireLive(c); err != nil {
			return err
		}
		if c.AttachmentURL == nil || *c.AttachmentURL != objectName {
			return fmt.Errorf("%w: carta %d no longer holds %s", ErrStaleAttachment, c.LetterNumber, objectName)
		}
		c.ThumbnailURL = &thumb
		return nil
	}}
}

// checkConsistency enforces the pairing between status, adopter and delivery.
func checkConsistency(c *models.Carta) error {
	c.IsDelivered = c.Status == models.StatusDelivered
	if !c.IsDelivered {
		clearDelivery(c)
	}

	switch c.Status {
	case models.StatusAdopted, models.StatusDelivered:
		if c.AdopterEmail == nil {
			return fmt.Errorf("%w: a %s carta needs an adopter", ErrValidation, c.Status)
		}
	case models.StatusAvailable, models.StatusCancelled:
		if c.AdopterEmail != nil {
			return fmt.Errorf("%w: a %s carta cannot have an adopter", ErrValidation, c.Status)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, c.Status)
	}
	return nil
}
