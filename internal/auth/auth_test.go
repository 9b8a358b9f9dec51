package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/database"
	"github.com/noel-cartinhas/noel/internal/dbtest"
	"github.com/noel-cartinhas/noel/internal/identity"
	"github.com/noel-cartinhas/noel/internal/usuarios"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	err  error
	info map[string]interface{}
}

func (f fakeVerifier) Check(_ context.Context, username, _ string) (*identity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Identity{Username: username, Info: f.info}, nil
}

func newTestRouter(t *testing.T, v Verifier) (*gin.Engine, *usuarios.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	require.NoError(t, database.SeedReference(db))
	users := usuarios.NewRepository(db)
	svc := NewService(v, users)

	r := gin.New()
	r.Use(sessions.Sessions("noel_session", cookie.NewStore([]byte("test-secret"))))
	r.Use(LoadSession(svc))
	r.POST("/api/auth/login", APILoginHandler(svc))
	r.POST("/login", LoginFormHandler(svc))
	r.GET("/api/auth/me", MeHandler)
	r.POST("/cartas/adopt/:n", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/cartas/api/deliver/:n", RequireRoles(access.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r, users
}

func postJSON(r http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPILoginCreatesUserAndSession(t *testing.T) {
	r, users := newTestRouter(t, fakeVerifier{info: map[string]interface{}{"displayName": "Ana Souza"}})

	w := postJSON(r, "/api/auth/login", `{"username":"Ana@noel.org","password":"x"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Email       string   `json:"email"`
		DisplayName string   `json:"display_name"`
		Roles       []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ana@noel.org", body.Email)
	assert.Equal(t, "Ana Souza", body.DisplayName)
	assert.Equal(t, []string{"USER"}, body.Roles)

	u, err := users.GetByEmail(context.Background(), "ana@noel.org")
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "ana@noel.org")

	// USER is not enough to deliver.
	w = postJSON(r, "/cartas/api/deliver/1", "", cookies...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// but enough to adopt.
	w = postJSON(r, "/cartas/adopt/1", "", cookies...)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAPILoginErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
		body string
	}{
		{identity.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{fmt.Errorf("%w: timeout", identity.ErrUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tt := range tests {
		r, _ := newTestRouter(t, fakeVerifier{err: tt.err})
		w := postJSON(r, "/api/auth/login", `{"username":"a@x.com","password":"x"}`)
		assert.Equal(t, tt.code, w.Code)
		assert.Contains(t, w.Body.String(), tt.body)
	}
}

func TestInactiveUserIsRejected(t *testing.T) {
	r, users := newTestRouter(t, fakeVerifier{})
	inactive := false
	_, err := users.Create(context.Background(), usuarios.NewUser{Email: "off@noel.org", IsActive: &inactive})
	require.NoError(t, err)

	w := postJSON(r, "/api/auth/login", `{"username":"off@noel.org","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "inactive_user")
}

func TestFormLoginRedirects(t *testing.T) {
	r, _ := newTestRouter(t, fakeVerifier{err: identity.ErrInvalidCredentials})

	form := url.Values{"username": {"a@x.com"}, "password": {"bad"}, "next": {"/cartas/7"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fcartas%2F7&error=invalid_credentials", w.Header().Get("Location"))
}

func TestRequireAuthAnonymous(t *testing.T) {
	r, _ := newTestRouter(t, fakeVerifier{})

	w := postJSON(r, "/cartas/adopt/3", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fcartas%2Fadopt%2F3", w.Header().Get("Location"))

	w = postJSON(r, "/cartas/api/deliver/3", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), access.ErrUnauthenticated.Error())
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/cartas/1", SafeNext("/cartas/1"))
	assert.Equal(t, "/", SafeNext(""))
	assert.Equal(t, "/", SafeNext("https://evil.test"))
	assert.Equal(t, "/", SafeNext("//evil.test"))
}

func TestSessionFollowsRoleChanges(t *testing.T) {
	r, users := newTestRouter(t, fakeVerifier{})
	ctx := context.Background()
	for _, email := range []string{"chefe@noel.org", "vice@noel.org"} {
		_, err := users.Create(ctx, usuarios.NewUser{Email: email, Roles: []string{"ADMIN"}})
		require.NoError(t, err)
	}

	w := postJSON(r, "/api/auth/login", `{"username":"chefe@noel.org","password":"x"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()

	w = postJSON(r, "/cartas/api/deliver/1", "", cookies...)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := users.RemoveRole(ctx, "chefe@noel.org", access.RoleAdmin)
	require.NoError(t, err)

	w = postJSON(r, "/cartas/api/deliver/1", "", cookies...)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = postJSON(r, "/cartas/adopt/1", "", cookies...)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err = users.Deactivate(ctx, "chefe@noel.org")
	require.NoError(t, err)

	w = postJSON(r, "/cartas/api/deliver/1", "", cookies...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
