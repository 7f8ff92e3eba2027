package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/handlers"
	"github.com/distinctlyminty44/role-based-rls/internal/logger"
)

const serviceName = "role-based-rls"

// Pinger reports whether the database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps is everything the router wires into routes
type Deps struct {
	Invitations *handlers.InvitationHandler
	Directory   *handlers.DirectoryHandler
	AuthEvents  *handlers.AuthEventHandler
	Session     *handlers.SessionAuthMiddleware
	HookKeyHash string
	DB          Pinger
	Logger      zerolog.Logger
	Tracing     bool
}

func NewGinRouter(deps Deps) *gin.Engine {
	r := gin.New()

	if deps.Tracing {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(gin.Recovery())
	r.Use(logger.GinRequests(deps.Logger))

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// PUBLIC ENDPOINTS (no authentication required)
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// IDENTITY-PROVIDER HOOKS
	hooks := r.Group("/hooks", handlers.RequireHookKey(deps.HookKeyHash))
	{
		hooks.POST("/auth-events", deps.AuthEvents.Handle)
	}

	// PROTECTED ROUTES (session token required)
	api := r.Group("/api", deps.Session.Authenticate())
	{
		api.GET("/me", deps.Directory.Me)

		api.POST("/organisations", authz.RequireTier(authz.RolePlatform), deps.Invitations.CreateOrganisation)
		api.GET("/organisations", authz.RequireTier(authz.RoleOwner), deps.Directory.ListOrganisations)
		api.POST("/organisations/:id/owners", authz.RequireTier(authz.RoleOwner), deps.Invitations.AddOrganisationOwner)

		api.POST("/teams", authz.RequireTier(authz.RoleOwner), deps.Invitations.CreateTeam)
		api.POST("/teams/own", authz.RequireTier(authz.RoleOwner), deps.Invitations.CreateOwnTeam)
		api.GET("/teams", authz.RequireTier(authz.RoleManager), deps.Directory.ListTeams)
		api.POST("/teams/:id/users", authz.RequireTier(authz.RoleManager), deps.Invitations.AddTeamUser)
	}

	return r
}
