// Package catalog manages the reference tables: modules, letter groups
// and roles.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("catalog entry not found")
	ErrExists   = errors.New("catalog entry already exists")
	ErrInvalid  = errors.New("invalid catalog entry")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func translate(kind string, id uint, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", ErrExists, kind)
	}
	return fmt.Errorf("failed to write %s: %w", kind, err)
}

func clamp(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return skip, limit
}

// Roles lists every role ordered by code.
func (r *Repository) Roles(ctx context.Context) ([]models.Role, error) {
	var out []models.Role
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return out, nil
}

func (r *Repository) Modules(ctx context.Context, skip, limit int) ([]models.Modulo, error) {
	skip, limit = clamp(skip, limit)
	var out []models.Modulo
	if err := r.db.WithContext(ctx).Order("id ASC").Offset(skip).Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateModule(ctx context.Context, name string) (*models.Modulo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if err := r.ensureUniqueModule(ctx, name, 0); err != nil {
		return nil, err
	}
	m := models.Modulo{Name: name}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate("module", 0, err)
	}
	return &m, nil
}

func (r *Repository) UpdateModule(ctx context.Context, id uint, name string) (*models.Modulo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	var m models.Modulo
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate("module", id, err)
	}
	if err := r.ensureUniqueModule(ctx, name, id); err != nil {
		return nil, err
	}
	m.Name = name
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return nil, translate("module", id, err)
	}
	return &m, nil
}

// DeleteModule removes a module. Users pointing at it are detached.
func (r *Repository) DeleteModule(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Modulo{}, id)
		if res.Error != nil {
			return translate("module", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: module %d", ErrNotFound, id)
		}
		return tx.Model(&models.User{}).Where("module_id = ?", id).Update("module_id", nil).Error
	})
}

func (r *Repository) ensureUniqueModule(ctx context.Context, name string, except uint) error {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Modulo{}).
		Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), except).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to check module name: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: module %q", ErrExists, name)
	}
	return nil
}

// GroupInput is the writable part of a group.
type GroupInput struct {
	Description string  `json:"description"`
	Color       *string `json:"color"`
}

func (in GroupInput) validate() (GroupInput, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return in, fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if in.Color != nil {
		c := strings.TrimSpace(*in.Color)
		if c == "" {
			in.Color = nil
		} else {
			in.Color = &c
		}
	}
	return in, nil
}

func (r *Repository) Groups(ctx context.Context) ([]models.Grupo, error) {
	var out []models.Grupo
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateGroup(ctx context.Context, in GroupInput) (*models.Grupo, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	g := models.Grupo{Description: in.Description, Color: in.Color}
	if err := r.db.WithContext(ctx).Create(&g).Error; err != nil {
		return nil, translate("group", 0, err)
	}
	return &g, nil
}

func (r *Repository) UpdateGroup(ctx context.Context, id uint, in GroupInput) (*models.Grupo, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	var g models.Grupo
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, translate("group", id, err)
	}
	g.Description, g.Color = in.Description, in.Color
	if err := r.db.WithContext(ctx).Save(&g).Error; err != nil {
		return nil, translate("group", id, err)
	}
	return &g, nil
}

// DeleteGroup removes a group. Letters in it keep existing without one.
func (r *Repository) DeleteGroup(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Grupo{}, id)
		if res.Error != nil {
			return translate("group", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: group %d", ErrNotFound, id)
		}
		return tx.Model(&models.Carta{}).Where("group_id = ?", id).Update("group_id", nil).Error
	})
}
