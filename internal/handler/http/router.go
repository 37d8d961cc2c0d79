package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/config"
	"github.com/assistant-platform/auth-service/internal/handler/http/middleware"
	"github.com/assistant-platform/auth-service/internal/service"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *service.AuthService
	MFA      *service.MFAService
	Sessions *service.SessionService
	Tokens   *service.APITokenService
	Registry *prometheus.Registry
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// Gin trusts every proxy by default, which would let clients pick their
	// own ClientIP via X-Forwarded-For. Only configured proxies are trusted.
	if err := engine.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		deps.Logger.Error("Invalid trusted_proxies configuration, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(
		middleware.Recovery(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.CORS(deps.Config.Server.CORSOrigins),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	authHandler := NewAuthHandler(deps.Auth, deps.Logger, deps.Config)
	mfaHandler := NewMFAHandler(deps.MFA, deps.Logger)
	tokenHandler := NewTokenHandler(deps.Tokens, deps.Logger)
	meHandler := NewMeHandler(deps.Sessions, deps.Logger)

	v1 := engine.Group("/api/v1")

	// Public login flow.
	v1.GET("/auth/oauth/:provider", authHandler.Begin)
	v1.GET("/auth/oauth/:provider/callback", authHandler.Callback)
	v1.POST("/auth/mfa/verify", authHandler.VerifyMFA)
	v1.POST("/auth/logout", authHandler.Logout)

	// Everything below requires an identity.
	authenticated := v1.Group("")
	authenticated.Use(middleware.Authenticate(deps.Sessions, deps.Tokens, deps.Logger))

	authenticated.GET("/me", meHandler.Get)
	authenticated.DELETE("/me/sessions", meHandler.RevokeAllSessions)

	// Changing auth factors or minting tokens needs a fully verified session.
	elevated := authenticated.Group("")
	elevated.Use(middleware.RequireMFAElevated())

	elevated.POST("/mfa/provision", mfaHandler.Provision)
	elevated.POST("/mfa/activate", mfaHandler.Activate)
	elevated.POST("/mfa/disable", mfaHandler.Disable)
	elevated.POST("/mfa/backup-codes", mfaHandler.RegenerateBackupCodes)

	elevated.POST("/tokens", tokenHandler.Issue)
	elevated.DELETE("/tokens/:id", tokenHandler.Revoke)
	elevated.DELETE("/tokens", tokenHandler.RevokeAll)

	return engine
}
