package usuarios

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrExists       = errors.New("user already exists")
	ErrRoleNotFound = errors.New("role not found")
	ErrInvalid      = errors.New("invalid user")
)

// Repository stores users and their role links.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ListFilter narrows List.
type ListFilter struct {
	Active   *bool
	Query    string
	ModuleID *uint
	Role     access.Role
	Skip     int
	Limit    int
}

// Patch is a partial user update; nil fields are left alone.
type Patch struct {
	DisplayName *string `json:"display_name"`
	EmployeeID  *string `json:"employee_id"`
	ModuleID    *uint   `json:"module_id"`
	IsActive    *bool   `json:"is_active"`
}

// NewUser is the admin create payload.
type NewUser struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	EmployeeID  *string  `json:"employee_id"`
	ModuleID    *uint    `json:"module_id"`
	IsActive    *bool    `json:"is_active"`
	Roles       []string `json:"roles"`
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail loads a user with roles.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("Roles.Role").Where("email = ?", normaliseEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", email, err)
	}
	return &u, nil
}

// List returns a page of users ordered by email and the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	if f.ModuleID != nil {
		q = q.Where("module_id = ?", *f.ModuleID)
	}
	if f.Role != "" {
		q = q.Where("email IN (?)", r.db.Model(&models.UserRole{}).
			Select("user_roles.user_email").
			Joins("JOIN roles ON roles.id = user_roles.role_id").
			Where("roles.code = ?", string(f.Role)))
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		// employee_id may be sealed at rest, so it is only searchable in plain text deployments.
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(email) LIKE ? OR LOWER(display_name) LIKE ? OR LOWER(COALESCE(employee_id, '')) LIKE ?)", like, like, like)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var users []models.User
	err := q.Session(&gorm.Session{}).Preload("Roles.Role").
		Order("email ASC").Offset(max(f.Skip, 0)).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// Create inserts a user with the given roles, USER when none are given.
func (r *Repository) Create(ctx context.Context, in NewUser) (*models.User, error) {
	email := normaliseEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalid)
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{string(access.RoleUser)}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrExists, email)
		}

		u := models.User{Email: email, DisplayName: name, EmployeeID: in.EmployeeID, ModuleID: in.ModuleID, IsActive: active}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		for _, code := range roles {
			if err := r.withTx(tx).addRole(ctx, email, access.ParseRole(code)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByEmail(ctx, email)
}

// EnsureFromIdentity returns the user for email, creating it with the USER
// role on first sight. An existing user's stored fields are kept.
func (r *Repository) EnsureFromIdentity(ctx context.Context, email, displayName, employeeID string, info datatypes.JSON) (*models.User, bool, error) {
	email = normaliseEmail(email)
	u, err := r.GetByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nu := models.User{Email: email, DisplayName: displayName, IsActive: true, IdentityInfo: info}
		if employeeID != "" {
			nu.EmployeeID = &employeeID
		}
		if err := tx.Create(&nu).Error; err != nil {
			return err
		}
		return r.withTx(tx).addRole(ctx, email, access.RoleUser)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user %s: %w", email, err)
	}

	u, err = r.GetByEmail(ctx, email)
	return u, true, err
}

// Update applies p. Turning off the last active administrator fails with
// access.ErrLastAdmin.
func (r *Repository) Update(ctx context.Context, email string, p Patch) (*models.User, error) {
	email = normaliseEmail(email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := r.withTx(tx)
		u, err := txr.GetByEmail(ctx, email)
		if err != nil {
			return err
		}

		if p.IsActive != nil && !*p.IsActive && u.IsActive && hasRole(u, access.RoleAdmin) {
			if err := access.EnsureAdminRetained(ctx, txr, email); err != nil {
				return err
			}
		}

		cols := []string{}
		if p.DisplayName != nil {
			name := strings.TrimSpace(*p.DisplayName)
			if name == "" {
				return fmt.Errorf("%w: display_name cannot be empty", ErrInvalid)
			}
			u.DisplayName = name
			cols = append(cols, "display_name")
		}
		if p.EmployeeID != nil {
			u.EmployeeID = p.EmployeeID
			if strings.TrimSpace(*p.EmployeeID) == "" {
				u.EmployeeID = nil
			}
			cols = append(cols, "employee_id")
		}
		if p.ModuleID != nil {
			u.ModuleID = p.ModuleID
			if *p.ModuleID == 0 {
				u.ModuleID = nil
			}
			cols = append(cols, "module_id")
		}
		if p.IsActive != nil {
			u.IsActive = *p.IsActive
			cols = append(cols, "is_active")
		}
		if len(cols) == 0 {
			return nil
		}

		u.Roles = nil
		return tx.Model(u).Select(cols).Updates(u).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetByEmail(ctx, email)
}

// Deactivate marks a user inactive.
func (r *Repository) Deactivate(ctx context.Context, email string) (*models.User, error) {
	inactive := false
	return r.Update(ctx, email, Patch{IsActive: &inactive})
}

// AddRole grants role to email. Granting a held role is a no-op.
func (r *Repository) AddRole(ctx context.Context, email string, role access.Role) (*models.User, error) {
	email = normaliseEmail(email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := r.withTx(tx)
		if _, err := txr.GetByEmail(ctx, email); err != nil {
			return err
		}
		return txr.addRole(ctx, email, role)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByEmail(ctx, email)
}

// RemoveRole revokes role from email. Revoking ADMIN from the last active
// administrator fails with access.ErrLastAdmin.
func (r *Repository) RemoveRole(ctx context.Context, email string, role access.Role) (*models.User, error) {
	email = normaliseEmail(email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := r.withTx(tx)
		u, err := txr.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		roleRow, err := txr.role(ctx, role)
		if err != nil {
			return err
		}

		if role == access.RoleAdmin && u.IsActive && hasRole(u, access.RoleAdmin) {
			if err := access.EnsureAdminRetained(ctx, txr, email); err != nil {
				return err
			}
		}

		return tx.Where("user_email = ? AND role_id = ?", email, roleRow.ID).Delete(&models.UserRole{}).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetByEmail(ctx, email)
}

// CountActiveAdminsExcluding implements access.AdminCounter. It first locks
// the ADMIN role row so concurrent admin removals inside transactions take
// turns and each counts what the previous one committed.
func (r *Repository) CountActiveAdminsExcluding(ctx context.Context, email string) (int64, error) {
	var adminRole models.Role
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", string(access.RoleAdmin)).First(&adminRole).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock admin role: %w", err)
	}

	var n int64
	err = r.db.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN user_roles ON user_roles.user_email = users.email").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.code = ? AND users.is_active = ? AND users.email <> ?", string(access.RoleAdmin), true, normaliseEmail(email)).
		Distinct("users.email").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count administrators: %w", err)
	}
	return n, nil
}

// Roles lists role definitions.
func (r *Repository) Roles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (r *Repository) role(ctx context.Context, role access.Role) (*models.Role, error) {
	var row models.Role
	err := r.db.WithContext(ctx).Where("code = ?", string(role)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) addRole(ctx context.Context, email string, role access.Role) error {
	roleRow, err := r.role(ctx, role)
	if err != nil {
		return err
	}
	link := models.UserRole{UserEmail: email, RoleID: roleRow.ID}
	return r.db.WithContext(ctx).
		Where("user_email = ? AND role_id = ?", email, roleRow.ID).
		FirstOrCreate(&link).Error
}

func hasRole(u *models.User, role access.Role) bool {
	for _, ur := range u.Roles {
		if access.ParseRole(ur.Role.Code) == role {
			return true
		}
	}
	return false
}
