package models

import "time"

// CartaStatus is the closed set of lifecycle states a letter can be in.
type CartaStatus string

const (
	StatusAvailable CartaStatus = "available"
	StatusAdopted   CartaStatus = "adopted"
	StatusDelivered CartaStatus = "delivered"
	StatusCancelled CartaStatus = "cancelled"
)

// Valid reports whether s is one of the known states.
func (s CartaStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusAdopted, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Carta is a child's gift-request letter.
type Carta struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	LetterNumber     int         `gorm:"not null;uniqueIndex" json:"letter_number"`
	Name             string      `gorm:"not null" json:"name"`
	Sex              string      `gorm:"type:varchar(1);not null;check:ck_cartas_sex,sex IN ('M','F')" json:"sex"`
	Age              *int        `json:"age"`
	GiftDescription  string      `gorm:"not null" json:"gift_description"`
	Status           CartaStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Note             *string     `json:"note"`
	AdopterEmail     *string     `gorm:"index" json:"adopter_email"`
	AttachmentURL    *string     `json:"attachment_url"`
	ThumbnailURL     *string     `json:"thumbnail_url"`
	GroupID          *uint       `json:"group_id"`
	Group            *Grupo      `gorm:"constraint:OnDelete:SET NULL;" json:"group,omitempty"`
	IsDeleted        bool        `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt        *time.Time  `json:"deleted_at"`
	IsDelivered      bool        `gorm:"not null;default:false" json:"is_delivered"`
	DeliveredByEmail *string     `json:"delivered_by_email"`
	DeliveredAt      *time.Time  `json:"delivered_at"`
	Version          int         `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Carta) TableName() string { return "cartas" }

// Delivered reports delivery by flag or by status.
func (c *Carta) Delivered() bool {
	return c.IsDelivered || c.Status == StatusDelivered
}

// AdoptedBy reports whether email is the current adopter.
func (c *Carta) AdoptedBy(email string) bool {
	return c.AdopterEmail != nil && email != "" && equalFoldEmail(*c.AdopterEmail, email)
}
