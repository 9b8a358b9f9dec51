package auth

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/identity"
)

type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// LoginPageHandler serves GET /login. Rendering is left to the front end,
// which receives the redirect target and the last error code.
func LoginPageHandler(c *gin.Context) {
	next := SafeNext(c.Query("next"))
	if CurrentPrincipal(c) != nil {
		c.Redirect(http.StatusFound, next)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next, "error": c.Query("error")})
}

// LoginFormHandler serves POST /login and answers with redirects.
func LoginFormHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := SafeNext(c.PostForm("next"))
		var creds credentials
		_ = c.ShouldBind(&creds)

		p, err := svc.Authenticate(c.Request.Context(), creds.Username, creds.Password)
		if err != nil {
			log.Printf("Login failed for %s: %v", creds.Username, err)
			c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(next)+"&error="+errorCode(err))
			return
		}

		if err := saveSession(c, p); err != nil {
			log.Printf("Session save error: %v", err)
			c.Redirect(http.StatusSeeOther, "/login?error=session_failed")
			return
		}

		log.Printf("User authenticated: %s (%s)", p.DisplayName, p.Email)
		c.Redirect(http.StatusSeeOther, next)
	}
}

// APILoginHandler serves POST /api/auth/login with a JSON or form body.
func APILoginHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds credentials
		if err := c.ShouldBind(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		p, err := svc.Authenticate(c.Request.Context(), creds.Username, creds.Password)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorCode(err)})
			return
		}
		if err := saveSession(c, p); err != nil {
			log.Printf("Session save error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session_failed"})
			return
		}
		c.JSON(http.StatusOK, principalView(p))
	}
}

// MeHandler serves GET /api/auth/me.
func MeHandler(c *gin.Context) {
	p := CurrentPrincipal(c)
	if p == nil {
		Deny(c, access.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, principalView(p))
}

// LogoutHandler clears the session.
func LogoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Printf("Session clear error: %v", err)
	}
	c.Redirect(http.StatusFound, "/")
}

func saveSession(c *gin.Context, p *access.Principal) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionEmail, p.Email)
	return session.Save()
}

func principalView(p *access.Principal) gin.H {
	return gin.H{"email": p.Email, "display_name": p.DisplayName, "roles": p.Roles.Codes()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, identity.ErrUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrInactive):
		return "inactive_user"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	}
	return "login_failed"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInactive), errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
