// Package access decides what a principal may do.
package access

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/noel-cartinhas/noel/internal/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
	ErrLastAdmin       = errors.New("cannot remove the last active administrator")
)

// Role is a role code as stored in roles.code.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	RoleHR    Role = "RH"
)

// ParseRole normalises a role code.
func ParseRole(code string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(code)))
}

// RoleSet is an unordered set of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from raw codes, ignoring blanks.
func NewRoleSet(codes ...string) RoleSet {
	s := make(RoleSet, len(codes))
	for _, c := range codes {
		if r := ParseRole(c); r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// HasAny reports whether the sets intersect.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Codes returns the sorted role codes.
func (s RoleSet) Codes() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// Principal is the authenticated caller.
type Principal struct {
	Email       string
	DisplayName string
	Roles       RoleSet
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Roles.Has(RoleAdmin)
}

// Decision is what a principal may do with one letter.
type Decision struct {
	IsAdmin bool `json:"is_admin"`
	IsOwner bool `json:"is_owner"`
	CanEdit bool `json:"can_edit"`
}

// Evaluate computes the decision flags for p on c. A nil principal gets none.
func Evaluate(p *Principal, c *models.Carta) Decision {
	if p == nil || c == nil {
		return Decision{}
	}
	d := Decision{IsAdmin: p.IsAdmin(), IsOwner: c.AdoptedBy(p.Email)}
	d.CanEdit = d.IsAdmin || d.IsOwner
	return d
}

// Authorize checks that p is present and holds one of required.
// An empty required list only demands authentication.
func Authorize(p *Principal, required ...Role) error {
	if p == nil || p.Email == "" {
		return ErrUnauthenticated
	}
	if len(required) > 0 && !p.Roles.HasAny(required...) {
		return ErrForbidden
	}
	return nil
}

// AdminCounter counts active ADMIN holders other than email.
type AdminCounter interface {
	CountActiveAdminsExcluding(ctx context.Context, email string) (int64, error)
}

// EnsureAdminRetained fails with ErrLastAdmin when removing email's admin
// capability would leave no active administrator.
func EnsureAdminRetained(ctx context.Context, counter AdminCounter, email string) error {
	n, err := counter.CountActiveAdminsExcluding(ctx, email)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLastAdmin
	}
	return nil
}
