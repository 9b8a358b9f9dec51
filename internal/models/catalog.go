package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role is a named permission bundle (ADMIN, USER, RH).
type Role struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Description string `json:"description"`
}

// UserRole links a user to a role.
type UserRole struct {
	ID        uint   `gorm:"primaryKey"`
	UserEmail string `gorm:"type:varchar(255);not null;uniqueIndex:uq_user_roles_user_role"`
	RoleID    uint   `gorm:"not null;uniqueIndex:uq_user_roles_user_role"`
	Role      Role   `gorm:"constraint:OnDelete:CASCADE;"`
}

// Grupo classifies letters by origin.
type Grupo struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Description string  `gorm:"not null" json:"description"`
	Color       *string `json:"color"`
}

func (Grupo) TableName() string { return "groups" }

// Modulo is an organisational unit users belong to.
type Modulo struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

func (Modulo) TableName() string { return "modules" }

// GiftIcon maps a comma separated keyword list to an icon code.
type GiftIcon struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Keyword  string `gorm:"not null;uniqueIndex" json:"keyword"`
	IconCode string `gorm:"not null" json:"icon_code"`
}

// CartaEvent is one entry of a letter's lifecycle audit trail.
type CartaEvent struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	EventID      string         `gorm:"type:varchar(36);uniqueIndex" json:"event_id"`
	LetterNumber int            `gorm:"not null;index" json:"letter_number"`
	Action       string         `gorm:"not null" json:"action"`
	ActorEmail   string         `json:"actor_email"`
	Status       CartaStatus    `gorm:"type:varchar(20)" json:"status"`
	Payload      datatypes.JSON `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
}

// All returns every model, in dependency order, for schema setup in tests.
func All() []interface{} {
	return []interface{}{
		&Role{}, &Modulo{}, &Grupo{}, &User{}, &UserRole{}, &Carta{}, &GiftIcon{}, &CartaEvent{},
	}
}
