package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/usuarios"
)

// Session and context keys.
const (
	sessionEmail     = "user_email"
	contextPrincipal = "principal"
)

// LoadSession puts the session principal, if any, on the context. Roles
// come from the user row on every request, not from the cookie. A user
// that is gone or inactive has the session cleared. It never rejects a
// request; RequireAuth and RequireRoles do that.
func LoadSession(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		email, _ := session.Get(sessionEmail).(string)
		if email == "" {
			c.Next()
			return
		}

		p, err := s.Refresh(c.Request.Context(), email)
		switch {
		case err == nil:
			SetPrincipal(c, p)
		case errors.Is(err, ErrInactive) || errors.Is(err, usuarios.ErrNotFound):
			slog.Info("Dropping session of unavailable user", "email", email, "reason", err)
			session.Clear()
			if err := session.Save(); err != nil {
				slog.Error("Failed to clear session", "email", email, "error", err)
			}
		default:
			slog.Error("Failed to refresh session user", "email", email, "error", err)
		}
		c.Next()
	}
}

// SetPrincipal attaches p to the request.
func SetPrincipal(c *gin.Context, p *access.Principal) {
	c.Set(contextPrincipal, p)
	c.Set("user_email", p.Email)
	c.Set("user_name", p.DisplayName)
}

// CurrentPrincipal returns the authenticated caller or nil.
func CurrentPrincipal(c *gin.Context) *access.Principal {
	v, ok := c.Get(contextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*access.Principal)
	return p
}

// RequireAuth rejects anonymous requests.
func RequireAuth() gin.HandlerFunc {
	return RequireRoles()
}

// RequireRoles rejects requests whose principal holds none of roles.
// With no roles it only requires authentication.
func RequireRoles(roles ...access.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := access.Authorize(CurrentPrincipal(c), roles...)
		if err == nil {
			c.Next()
			return
		}
		Deny(c, err)
	}
}

// Deny aborts with the response matching an access error.
func Deny(c *gin.Context, err error) {
	unauthenticated := errors.Is(err, access.ErrUnauthenticated)

	switch {
	case IsAPIRequest(c):
		status := http.StatusForbidden
		if unauthenticated {
			status = http.StatusUnauthorized
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
	case c.GetHeader("HX-Request") == "true" && unauthenticated:
		c.Header("HX-Redirect", loginURL(c))
		c.AbortWithStatus(http.StatusUnauthorized)
	case unauthenticated:
		c.Redirect(http.StatusSeeOther, loginURL(c))
		c.Abort()
	default:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	}
}

// IsAPIRequest reports whether the caller expects JSON errors rather than redirects.
func IsAPIRequest(c *gin.Context) bool {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/api/") || strings.Contains(path, "/api/") || strings.HasSuffix(path, "/api") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func loginURL(c *gin.Context) string {
	return "/login?next=" + url.QueryEscape(c.Request.URL.RequestURI())
}

// SafeNext keeps redirects on this site.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
