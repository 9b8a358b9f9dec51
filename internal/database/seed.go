package database

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/gorm"
)

// Role codes seeded on every start.
var defaultRoles = []models.Role{
	{Code: "ADMIN", Description: "Administrador"},
	{Code: "USER", Description: "Usuário"},
	{Code: "RH", Description: "Recursos Humanos"},
}

var defaultGroups = []string{"Correios", "Terceirizados"}

// SeedReference makes sure roles and letter groups exist. Idempotent.
func SeedReference(db *gorm.DB) error {
	for _, r := range defaultRoles {
		role := r
		if err := db.Where("code = ?", role.Code).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Code, err)
		}
	}

	for _, desc := range defaultGroups {
		group := models.Grupo{Description: desc}
		if err := db.Where("description = ?", desc).FirstOrCreate(&group).Error; err != nil {
			return fmt.Errorf("failed to seed group %s: %w", desc, err)
		}
	}
	return nil
}

// EnsureBootstrapAdmin gives email the ADMIN role, creating the user if needed.
// It keeps a fresh install from starting with no administrator.
func EnsureBootstrapAdmin(db *gorm.DB, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var admin models.Role
		if err := tx.Where("code = ?", "ADMIN").First(&admin).Error; err != nil {
			return fmt.Errorf("ADMIN role missing, seed reference data first: %w", err)
		}

		var user models.User
		err := tx.Where("email = ?", email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{Email: email, DisplayName: strings.SplitN(email, "@", 2)[0], IsActive: true}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create bootstrap admin: %w", err)
			}
			log.Printf("Created bootstrap admin %s", email)
		case err != nil:
			return err
		}

		link := models.UserRole{UserEmail: email, RoleID: admin.ID}
		return tx.Where("user_email = ? AND role_id = ?", email, admin.ID).FirstOrCreate(&link).Error
	})
}

// SeedDevData adds a handful of letters for local development.
// Idempotent: skips if any letter exists.
func SeedDevData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Carta{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Seed data already exists, skipping")
		return nil
	}

	age := func(n int) *int { return &n }
	letters := []models.Carta{
		{LetterNumber: 1, Name: "Ana", Sex: "F", Age: age(7), GiftDescription: "Boneca", Status: models.StatusAvailable},
		{LetterNumber: 2, Name: "Bruno", Sex: "M", Age: age(9), GiftDescription: "Bola de futebol", Status: models.StatusAvailable},
		{LetterNumber: 3, Name: "Carla", Sex: "F", Age: age(5), GiftDescription: "Livro de colorir", Status: models.StatusAvailable},
		{LetterNumber: 4, Name: "Davi", Sex: "M", Age: age(11), GiftDescription: "Bicicleta", Status: models.StatusAvailable},
	}
	if err := db.Create(&letters).Error; err != nil {
		return err
	}

	log.Printf("Seeded dev data: %d letters", len(letters))
	return nil
}
