package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/identity"
	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/datatypes"
)

// ErrInactive rejects users an administrator switched off.
var ErrInactive = errors.New("user is inactive")

// Verifier checks credentials against the identity bridge.
type Verifier interface {
	Check(ctx context.Context, username, password string) (*identity.Identity, error)
}

// UserStore materialises local users for verified identities and reloads
// them for live sessions.
type UserStore interface {
	EnsureFromIdentity(ctx context.Context, email, displayName, employeeID string, info datatypes.JSON) (*models.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service turns credentials into a session principal.
type Service struct {
	verifier Verifier
	users    UserStore
}

func NewService(v Verifier, users UserStore) *Service {
	return &Service{verifier: v, users: users}
}

// Authenticate verifies the credentials, makes sure a local user exists and
// returns the principal to store in the session.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*access.Principal, error) {
	id, err := s.verifier.Check(ctx, username, password)
	if err != nil {
		return nil, err
	}

	var info datatypes.JSON
	if len(id.Info) > 0 {
		raw, err := json.Marshal(id.Info)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal identity info: %w", err)
		}
		info = datatypes.JSON(raw)
	}

	user, created, err := s.users.EnsureFromIdentity(ctx, id.Email(), id.DisplayName(), id.EmployeeID(), info)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("Created user on first login", "email", user.Email)
	}
	if !user.IsActive {
		return nil, ErrInactive
	}
	return principalOf(user), nil
}

// Refresh reloads the session user so role changes and deactivation take
// effect on the next request.
func (s *Service) Refresh(ctx context.Context, email string) (*access.Principal, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactive
	}
	return principalOf(user), nil
}

func principalOf(user *models.User) *access.Principal {
	return &access.Principal{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       access.NewRoleSet(user.RoleCodes()...),
	}
}
