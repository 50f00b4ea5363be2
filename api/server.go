// Package api is the HTTP surface of the Strata backend. Handlers are thin:
// they bind the request, call a service and serialize the result; every
// behavior decision lives in the service packages.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/auth"
	"strata.evalgo.org/blueprint"
	"strata.evalgo.org/common"
	"strata.evalgo.org/config"
	"strata.evalgo.org/content"
	"strata.evalgo.org/webhook"
)

// WebhookStore is the persistence surface the webhook management routes
// need. The db package implements it.
type WebhookStore interface {
	InsertWebhook(ctx context.Context, w *webhook.Webhook) error
	UpdateWebhook(ctx context.Context, w *webhook.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	GetWebhook(ctx context.Context, id string) (*webhook.Webhook, error)
	ListWebhooks(ctx context.Context) ([]*webhook.Webhook, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]*webhook.Delivery, error)
}

// Server bundles the services behind the HTTP routes.
type Server struct {
	echo       *echo.Echo
	cfg        config.ServerConfig
	blueprints *blueprint.Service
	content    *content.Service
	auth       *auth.Service
	webhooks   WebhookStore
	limits     *keyLimiter
	logger     *logrus.Logger
}

// NewServer creates the echo server with the standard middleware stack and
// registers all routes. webhooks may be nil when webhook management is not
// wired.
func NewServer(cfg config.ServerConfig, blueprints *blueprint.Service, contents *content.Service, authSvc *auth.Service, webhooks WebhookStore) *Server {
	s := &Server{
		echo:       NewEchoServer(cfg),
		cfg:        cfg,
		blueprints: blueprints,
		content:    contents,
		auth:       authSvc,
		webhooks:   webhooks,
		limits:     newKeyLimiter(),
		logger:     common.Logger,
	}
	s.registerRoutes()
	return s
}

// NewEchoServer creates an Echo instance with the standard middleware.
func NewEchoServer(cfg config.ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
				http.MethodPatch,
				http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				echo.HeaderAuthorization,
				"X-API-Key",
			},
		}))
	}

	e.Use(middleware.RequestID())
	e.Use(SecurityHeadersMiddleware())

	return e
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", HealthCheckHandler("strata", ""))
	s.echo.POST("/auth/login", s.handleLogin)

	api := s.echo.Group("/api")
	api.Use(s.apiKeyMiddleware())
	api.Use(s.jwtMiddleware())
	api.Use(s.identityMiddleware())

	api.GET("/auth/me", s.handleMe)
	api.PUT("/auth/password", s.handleChangePassword)
	api.GET("/auth/keys", s.handleListAPIKeys)
	api.POST("/auth/keys", s.handleCreateAPIKey)
	api.POST("/auth/keys/:id/disable", s.handleDisableAPIKey)
	api.DELETE("/auth/keys/:id", s.handleRevokeAPIKey)

	admin := api.Group("/users", s.requireRole(auth.RoleAdmin))
	admin.GET("", s.handleListUsers)
	admin.POST("", s.handleCreateUser)
	admin.GET("/:id", s.handleGetUser)
	admin.DELETE("/:id", s.handleDeleteUser)

	api.GET("/blueprints", s.handleListBlueprints)
	api.POST("/blueprints", s.handleCreateBlueprint)
	api.GET("/blueprints/:bp", s.handleGetBlueprint)
	api.PUT("/blueprints/:bp", s.handleUpdateBlueprint)
	api.DELETE("/blueprints/:bp", s.handleDeleteBlueprint)

	api.POST("/blueprints/:bp/content", s.handleCreateContent)
	api.GET("/blueprints/:bp/content", s.handleListContent)
	api.GET("/blueprints/:bp/content/:id", s.handleGetContent)
	api.PATCH("/blueprints/:bp/content/:id", s.handleUpdateContent)
	api.DELETE("/blueprints/:bp/content/:id", s.handleDeleteContent)
	api.POST("/blueprints/:bp/content/:id/publish", s.handlePublishContent)
	api.POST("/blueprints/:bp/content/:id/unpublish", s.handleUnpublishContent)
	api.POST("/blueprints/:bp/content/:id/archive", s.handleArchiveContent)
	api.GET("/blueprints/:bp/content/:id/versions", s.handleListVersions)
	api.POST("/blueprints/:bp/content/:id/rollback", s.handleRollbackContent)

	api.POST("/relations", s.handleAddRelation)
	api.DELETE("/relations/:id", s.handleRemoveRelation)

	if s.webhooks != nil {
		api.GET("/webhooks", s.handleListWebhooks)
		api.POST("/webhooks", s.handleCreateWebhook)
		api.GET("/webhooks/:id", s.handleGetWebhook)
		api.PUT("/webhooks/:id", s.handleUpdateWebhook)
		api.DELETE("/webhooks/:id", s.handleDeleteWebhook)
		api.GET("/webhooks/:id/deliveries", s.handleListDeliveries)
	}
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.WithField("addr", srv.Addr).Info("starting http server")
	return s.echo.StartServer(srv)
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// HealthCheckHandler returns a standard health check handler.
func HealthCheckHandler(serviceName, version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
		})
	}
}

// SecurityHeadersMiddleware adds security headers to responses.
func SecurityHeadersMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")
			c.Response().Header().Set("X-XSS-Protection", "1; mode=block")
			return next(c)
		}
	}
}
