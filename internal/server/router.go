package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostpanel/tokengate/internal/gateway"
	"github.com/hostpanel/tokengate/internal/health"
	"github.com/hostpanel/tokengate/internal/observability"
	"github.com/hostpanel/tokengate/internal/token"
)

// RouterConfig wires the route table.
type RouterConfig struct {
	Gateway *gateway.Gateway
	Manager *token.Manager
	Store   token.Store
	Checker *health.Checker
	Logger  observability.Logger

	// ClientIP resolves the client address for allowlist checks. Nil
	// means RemoteAddr only.
	ClientIP *ClientIPExtractor

	// AdminSecret enables the /admin API when non-empty.
	AdminSecret string
}

// NewRouter builds the full route table on a fresh engine.
//
// Probes and metrics are unauthenticated. Everything under /v1 passes
// through the token authentication middleware; everything under /admin is
// guarded by the admin secret.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	engine := NewEngine()
	engine.Use(Recovery(logger))
	engine.Use(RequestID())
	engine.Use(Logging(logger))

	if cfg.Checker != nil {
		engine.GET("/healthz", cfg.Checker.Live)
		engine.GET("/readyz", cfg.Checker.Ready)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.Use(Auth(cfg.Gateway, cfg.ClientIP, logger))
	v1.GET("/whoami", whoami)

	if cfg.AdminSecret != "" {
		api := &adminAPI{
			manager: cfg.Manager,
			store:   cfg.Store,
			gateway: cfg.Gateway,
			logger:  logger,
		}

		admin := engine.Group("/admin")
		admin.Use(AdminAuth(cfg.AdminSecret))

		admin.POST("/tokens", api.issue)
		admin.GET("/tokens", api.list)
		admin.GET("/tokens/:id", api.get)
		admin.PUT("/tokens/:id/policy", api.updatePolicy)
		admin.POST("/tokens/:id/activate", api.activate)
		admin.POST("/tokens/:id/deactivate", api.deactivate)
		admin.POST("/tokens/:id/regenerate", api.regenerate)
		admin.DELETE("/tokens/:id", api.delete)
		admin.GET("/tokens/:id/quota", api.quota)
		admin.POST("/tokens/:id/quota/reset", api.resetQuota)
	}

	return engine
}
