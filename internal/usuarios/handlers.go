package usuarios

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/models"
)

// UserView is the JSON shape of a user.
type UserView struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	EmployeeID  *string   `json:"employee_id"`
	ModuleID    *uint     `json:"module_id"`
	IsActive    bool      `json:"is_active"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewOf(u *models.User) UserView {
	return UserView{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		EmployeeID:  u.EmployeeID,
		ModuleID:    u.ModuleID,
		IsActive:    u.IsActive,
		Roles:       u.RoleCodes(),
		CreatedAt:   u.CreatedAt,
	}
}

// ListHandler serves GET /usuarios.
func ListHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := ListFilter{
			Query: c.Query("q"),
			Skip:  queryInt(c, "skip", 0),
			Limit: queryInt(c, "limit", 100),
			Role:  access.ParseRole(c.Query("role")),
		}
		if raw := c.Query("ativo"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "ativo must be true or false"})
				return
			}
			f.Active = &active
		}
		if raw := c.Query("module_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "module_id must be a number"})
				return
			}
			mid := uint(id)
			f.ModuleID = &mid
		}

		users, total, err := repo.List(c.Request.Context(), f)
		if err != nil {
			log.Printf("Failed to list users: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}

		items := make([]UserView, 0, len(users))
		for i := range users {
			items = append(items, viewOf(&users[i]))
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "skip": f.Skip, "limit": f.Limit})
	}
}

// RolesHandler serves GET /usuarios/roles.
func RolesHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := repo.Roles(c.Request.Context())
		if err != nil {
			log.Printf("Failed to list roles: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list roles"})
			return
		}
		c.JSON(http.StatusOK, roles)
	}
}

// GetHandler serves GET /usuarios/:email.
func GetHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.GetByEmail(c.Request.Context(), c.Param("email"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(u))
	}
}

// CreateHandler serves POST /usuarios.
func CreateHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in NewUser
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := repo.Create(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, viewOf(u))
	}
}

// UpdateHandler serves PATCH /usuarios/:email.
func UpdateHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p Patch
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := repo.Update(c.Request.Context(), c.Param("email"), p)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(u))
	}
}

// AddRoleHandler serves POST /usuarios/:email/roles/:role.
func AddRoleHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.AddRole(c.Request.Context(), c.Param("email"), access.ParseRole(c.Param("role")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(u))
	}
}

// RemoveRoleHandler serves DELETE /usuarios/:email/roles/:role.
func RemoveRoleHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := repo.RemoveRole(c.Request.Context(), c.Param("email"), access.ParseRole(c.Param("role")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(u))
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalid), errors.Is(err, access.ErrLastAdmin):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("User operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
