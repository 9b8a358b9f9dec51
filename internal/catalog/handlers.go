package catalog

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("Catalog operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNotFound.Error()})
		return 0, false
	}
	return uint(id), true
}

// RolesHandler serves GET /permissoes/roles.
func RolesHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := repo.Roles(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, roles)
	}
}

type moduleRequest struct {
	Name string `json:"name"`
	// legacy field name
	Nome string `json:"nome"`
}

func (m moduleRequest) name() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Nome
}

func ListModulesHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		mods, err := repo.Modules(c.Request.Context(), skip, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, mods)
	}
}

func CreateModuleHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req moduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		m, err := repo.CreateModule(c.Request.Context(), req.name())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

func UpdateModuleHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req moduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		m, err := repo.UpdateModule(c.Request.Context(), id, req.name())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func DeleteModuleHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := repo.DeleteModule(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func ListGroupsHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, err := repo.Groups(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, groups)
	}
}

func CreateGroupHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in GroupInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		g, err := repo.CreateGroup(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, g)
	}
}

func UpdateGroupHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var in GroupInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		g, err := repo.UpdateGroup(c.Request.Context(), id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

func DeleteGroupHandler(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := repo.DeleteGroup(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
