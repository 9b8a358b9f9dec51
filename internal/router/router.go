// Package router assembles the HTTP surface of the service.
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/noel-cartinhas/noel/internal/access"
	"github.com/noel-cartinhas/noel/internal/auth"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/catalog"
	"github.com/noel-cartinhas/noel/internal/config"
	"github.com/noel-cartinhas/noel/internal/health"
	"github.com/noel-cartinhas/noel/internal/metrics"
	"github.com/noel-cartinhas/noel/internal/relatorios"
	"github.com/noel-cartinhas/noel/internal/usuarios"
)

const sessionName = "noel_session"

// Deps are the handlers' collaborators. Reports is nil when object
// storage is not configured.
type Deps struct {
	Config  *config.Config
	Auth    *auth.Service
	Cartas  *cartas.Handlers
	Users   *usuarios.Repository
	Catalog *catalog.Repository
	Reports *relatorios.Service
	Health  *health.Checker
}

// New builds the gin engine with every route registered.
func New(d Deps) *gin.Engine {
	if !d.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(metrics.Middleware())
	origins := d.Config.Origins()
	if len(origins) == 0 {
		origins = []string{"http://localhost:" + d.Config.Port}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store := cookie.NewStore([]byte(d.Config.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   d.Config.SessionMaxAge,
		HttpOnly: true,
		Secure:   !d.Config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(auth.LoadSession(d.Auth))

	r.GET("/", indexHandler(d.Config.AppVersion))
	r.GET("/health", gin.WrapF(d.Health.Handler))
	r.GET("/health/debug", gin.WrapF(d.Health.DebugHandler))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/login", auth.LoginPageHandler)
	r.POST("/login", auth.LoginFormHandler(d.Auth))
	r.GET("/logout", auth.LogoutHandler)
	r.POST("/api/auth/login", auth.APILoginHandler(d.Auth))
	r.GET("/api/auth/me", auth.MeHandler)

	registerCartas(r, d.Cartas)
	registerAdmin(r, d)

	return r
}

func registerCartas(r *gin.Engine, h *cartas.Handlers) {
	authed := auth.RequireAuth()
	admin := auth.RequireRoles(access.RoleAdmin)

	c := r.Group("/cartas")
	c.GET("", h.ListPageHandler())
	c.GET("/:n", h.ViewPageHandler())
	c.GET("/admin", admin, h.AdminPageHandler())

	c.POST("/adopt/:n", authed, h.AdoptFormHandler())
	c.POST("/cancel/:n", authed, h.CancelFormHandler())
	c.POST("/release/:n", authed, h.ReleaseFormHandler())
	c.POST("/deliver/:n", admin, h.DeliverFormHandler())
	c.POST("/undeliver/:n", admin, h.UndeliverFormHandler())

	api := c.Group("/api", authed)
	api.GET("", h.APIListHandler())
	api.GET("/:n", h.APIGetHandler())
	api.GET("/:n/anexo", admin, h.LatestAttachmentHandler())
	api.POST("/adopt", h.APIAdoptHandler())
	api.POST("/cancel/:n", h.APICancelHandler())
	api.POST("/release/:n", h.APIReleaseHandler())
	api.POST("/deliver/:n", admin, h.APIDeliverHandler())
	api.POST("/undeliver/:n", admin, h.APIUndeliverHandler())

	adm := api.Group("/admin", admin)
	adm.POST("/create", h.CreateHandler())
	adm.POST("/import", h.ImportHandler())
	adm.PUT("/:n", h.UpdateHandler())
	adm.DELETE("/:n", h.DeleteHandler())
	adm.GET("/:n/history", h.HistoryHandler())
	adm.POST("/:n/anexo", h.UploadHandler())
}

func registerAdmin(r *gin.Engine, d Deps) {
	admin := auth.RequireRoles(access.RoleAdmin)

	u := r.Group("/usuarios", admin)
	u.GET("", usuarios.ListHandler(d.Users))
	u.GET("/roles", usuarios.RolesHandler(d.Users))
	u.GET("/:email", usuarios.GetHandler(d.Users))
	u.POST("", usuarios.CreateHandler(d.Users))
	u.PATCH("/:email", usuarios.UpdateHandler(d.Users))
	u.POST("/:email/roles/:role", usuarios.AddRoleHandler(d.Users))
	u.DELETE("/:email/roles/:role", usuarios.RemoveRoleHandler(d.Users))

	r.GET("/permissoes/roles", admin, catalog.RolesHandler(d.Catalog))

	m := r.Group("/modulos", admin)
	m.GET("", catalog.ListModulesHandler(d.Catalog))
	m.POST("", catalog.CreateModuleHandler(d.Catalog))
	m.PUT("/:id", catalog.UpdateModuleHandler(d.Catalog))
	m.DELETE("/:id", catalog.DeleteModuleHandler(d.Catalog))

	g := r.Group("/grupos", admin)
	g.GET("", catalog.ListGroupsHandler(d.Catalog))
	g.POST("", catalog.CreateGroupHandler(d.Catalog))
	g.PUT("/:id", catalog.UpdateGroupHandler(d.Catalog))
	g.DELETE("/:id", catalog.DeleteGroupHandler(d.Catalog))

	rep := r.Group("/relatorios", admin)
	if d.Reports == nil {
		rep.Any("/*path", storageUnavailable)
		return
	}
	rep.GET("/anexos-orfaos", relatorios.OrphansHandler(d.Reports))
	rep.GET("/anexos-referenciados", relatorios.ReferencedHandler(d.Reports))
	rep.GET("/api/object-url", relatorios.ObjectURLHandler(d.Reports))
	rep.POST("/api/delete-object", relatorios.DeleteObjectHandler(d.Reports))
}

func indexHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "noel-cartinhas",
			"version": version,
			"links": gin.H{
				"cartas": "/cartas",
				"login":  "/login",
				"health": "/health",
			},
		})
	}
}

func storageUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is not configured"})
}
