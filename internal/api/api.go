// Package api exposes the encounter engine over HTTP/JSON using echo.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/encounter"
	"github.com/cory-johannsen/encounters/internal/observability"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Controller wires the encounter service to echo routes.
type Controller struct {
	Echo *echo.Echo

	svc      *encounter.Service
	auth     Authenticator
	metrics  *observability.EngineMetrics
	registry *prometheus.Registry
	health   HealthChecker
	logger   *zap.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithMetrics records HTTP request metrics and serves registry on /metrics.
func WithMetrics(metrics *observability.EngineMetrics, registry *prometheus.Registry) Option {
	return func(c *Controller) {
		c.metrics = metrics
		c.registry = registry
	}
}

// WithHealthCheck makes /healthz report the result of check.
func WithHealthCheck(check HealthChecker) Option {
	return func(c *Controller) {
		c.health = check
	}
}

// New creates a Controller on a fresh echo instance and registers every route.
//
// Precondition: svc and logger must be non-nil. auth may be nil, in which case
// every request is anonymous and credentials are rejected.
// Postcondition: Returns a Controller whose Echo is ready to serve.
func New(svc *encounter.Service, auth Authenticator, logger *zap.Logger, opts ...Option) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	c := &Controller{
		Echo:   e,
		svc:    svc,
		auth:   auth,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	e.HTTPErrorHandler = c.httpErrorHandler
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.Use(c.requestMetrics)

	c.Echo.GET("/healthz", c.Healthz)
	if c.registry != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})))
	}

	g := c.Echo.Group("/api/v1", c.identify)

	g.GET("/tables", c.ListTables)
	g.POST("/tables", c.CreateTable)
	g.POST("/tables/preview", c.PreviewTable)
	g.GET("/tables/:id", c.GetTable)
	g.PATCH("/tables/:id", c.UpdateTable)
	g.DELETE("/tables/:id", c.DeleteTable)
	g.POST("/tables/:id/generate", c.RegenerateTable)
	g.POST("/tables/:id/roll", c.RollTable)
	g.PATCH("/tables/:id/share", c.ShareTable)
	g.PATCH("/tables/:id/entries/:roll", c.ReplaceEntry)

	g.GET("/public/:slug", c.GetPublicTable)
	g.POST("/public/:slug/roll", c.RollPublicTable)
	g.POST("/public/:slug/copy", c.CopyPublicTable)
}

// Healthz reports service health, including the database when a check is configured.
func (c *Controller) Healthz(ctx echo.Context) error {
	if c.health != nil {
		hctx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := c.health(hctx); err != nil {
			c.logger.Warn("health check failed", zap.Error(err))
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
