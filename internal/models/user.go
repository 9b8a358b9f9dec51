package models

import (
	"strings"
	"time"

	"github.com/noel-cartinhas/noel/internal/crypto"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var encryptor *crypto.FieldEncryptor

// InitEncryption enables at-rest encryption of users.employee_id.
// Without it the column is stored as plain text.
func InitEncryption(encryptionKey string) error {
	enc, err := crypto.NewFieldEncryptor(encryptionKey)
	if err != nil {
		return err
	}
	encryptor = enc
	return nil
}

// DisableEncryption turns employee_id sealing off again.
func DisableEncryption() {
	encryptor = nil
}

// User is a person known to the service, keyed by email.
type User struct {
	Email        string         `gorm:"primaryKey;type:varchar(255)" json:"email"`
	DisplayName  string         `gorm:"not null" json:"display_name"`
	EmployeeID   *string        `gorm:"type:text" json:"employee_id"`
	ModuleID     *uint          `json:"module_id"`
	Module       *Modulo        `gorm:"constraint:OnDelete:SET NULL;" json:"-"`
	IsActive     bool           `gorm:"not null" json:"is_active"`
	IdentityInfo datatypes.JSON `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`

	// Associations
	Roles []UserRole `gorm:"foreignKey:UserEmail;references:Email;constraint:OnDelete:CASCADE;" json:"-"`
}

// RoleCodes lists the codes of preloaded roles.
func (u *User) RoleCodes() []string {
	codes := make([]string, 0, len(u.Roles))
	for _, ur := range u.Roles {
		if ur.Role.Code != "" {
			codes = append(codes, ur.Role.Code)
		}
	}
	return codes
}

// BeforeSave seals the employee id. The in-memory value is left sealed
// afterwards, so callers reload the row to read it back.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if encryptor == nil || u.EmployeeID == nil || *u.EmployeeID == "" {
		return nil
	}
	sealed, err := encryptor.Seal(*u.EmployeeID)
	if err != nil {
		return err
	}
	u.EmployeeID = &sealed
	return nil
}

// AfterFind opens the employee id.
func (u *User) AfterFind(tx *gorm.DB) error {
	if encryptor == nil || u.EmployeeID == nil || *u.EmployeeID == "" {
		return nil
	}
	plain, err := encryptor.Open(*u.EmployeeID)
	if err != nil {
		return err
	}
	u.EmployeeID = &plain
	return nil
}

func equalFoldEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
