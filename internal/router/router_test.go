package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noel-cartinhas/noel/internal/auth"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/catalog"
	"github.com/noel-cartinhas/noel/internal/config"
	"github.com/noel-cartinhas/noel/internal/database"
	"github.com/noel-cartinhas/noel/internal/dbtest"
	"github.com/noel-cartinhas/noel/internal/health"
	"github.com/noel-cartinhas/noel/internal/identity"
	"github.com/noel-cartinhas/noel/internal/usuarios"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	require.NoError(t, database.SeedReference(db))
	require.NoError(t, database.EnsureBootstrapAdmin(db, "admin@noel.org"))

	users := usuarios.NewRepository(db)
	cfg := &config.Config{
		Env:            "development",
		AppVersion:     "test",
		SessionSecret:  "router-test-secret",
		SessionMaxAge:  3600,
		AllowedOrigins: "http://localhost:8080",
	}
	return New(Deps{
		Config:  cfg,
		Auth:    auth.NewService(identity.NewClient("", time.Second, true), users),
		Cartas:  &cartas.Handlers{Service: cartas.NewService(cartas.NewRepository(db), nil)},
		Users:   users,
		Catalog: catalog.NewRepository(db),
		Health:  &health.Checker{Version: "test"},
	})
}

func login(t *testing.T, r *gin.Engine, email string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"`+email+`","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Result().Cookies()
}

func get(r *gin.Engine, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)

	assert.Equal(t, http.StatusOK, get(r, "/cartas", nil).Code)

	w = get(r, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st health.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "down", st.Status)

	assert.Equal(t, http.StatusOK, get(r, "/metrics", nil).Code)
}

func TestAnonymousIsTurnedAway(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/cartas/api", nil).Code)

	w := get(r, "/usuarios", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?next="))
}

func TestSessionCarriesRoles(t *testing.T) {
	r := newTestRouter(t)

	user := login(t, r, "maria@noel.org")
	assert.Equal(t, http.StatusOK, get(r, "/cartas/api", user).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/cartas/api/admin/1/history", user).Code)

	admin := login(t, r, "admin@noel.org")
	w := get(r, "/api/auth/me", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ADMIN")
	assert.Equal(t, http.StatusOK, get(r, "/usuarios", admin).Code)
	assert.Equal(t, http.StatusOK, get(r, "/modulos", admin).Code)
}

func TestReportsWithoutStorage(t *testing.T) {
	r := newTestRouter(t)
	admin := login(t, r, "admin@noel.org")

	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/relatorios/anexos-orfaos", admin).Code)
}
