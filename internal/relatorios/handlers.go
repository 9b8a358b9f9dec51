package relatorios

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OrphansHandler serves GET /relatorios/anexos-orfaos.
func OrphansHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep, err := svc.Build(c.Request.Context())
		if err != nil {
			log.Printf("Failed to build attachment report: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rep.Orphaned, "total": len(rep.Orphaned)})
	}
}

// ReferencedHandler serves GET /relatorios/anexos-referenciados.
func ReferencedHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep, err := svc.Build(c.Request.Context())
		if err != nil {
			log.Printf("Failed to build attachment report: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rep.Referenced, "total": len(rep.Referenced)})
	}
}

// ObjectURLHandler serves GET /relatorios/api/object-url?object_name=.
func ObjectURLHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.ObjectURL(c.Request.Context(), c.Query("object_name"))
		if errors.Is(err, ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			log.Printf("Failed to sign object URL: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign url"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": u})
	}
}

type deleteRequest struct {
	ObjectName string `json:"object_name" form:"object_name"`
}

// DeleteObjectHandler serves POST /relatorios/api/delete-object.
func DeleteObjectHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deleteRequest
		if err := c.ShouldBind(&req); err != nil || req.ObjectName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "object_name is required"})
			return
		}

		res, err := svc.DeleteObject(c.Request.Context(), req.ObjectName)
		switch {
		case errors.Is(err, ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrReferenced):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			log.Printf("Failed to delete object %s: %v", req.ObjectName, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete object"})
		default:
			c.JSON(http.StatusOK, res)
		}
	}
}
