package api

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/noetl/noetl/common/middleware"
)

// NewRouter builds the Echo instance serving every endpoint in spec §6,
// following the teacher's setupEcho/setupMiddleware/registerRoutes split.
func NewRouter(c *Container) *echo.Echo {
	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e)
	registerRoutes(e, c)
	return e
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
}

func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "noetl"})
	})
}

func registerRoutes(e *echo.Echo, c *Container) {
	run := NewRunHandler(c)
	exec := NewExecutionHandler(c)
	ev := NewEventHandler(c)
	q := NewQueueHandler(c)
	kc := NewKeychainHandler(c)
	rr := NewResultHandler(c)

	runGroup := e.Group("/api/run")
	if c.RateLimiter != nil {
		runGroup.Use(middleware.GlobalRateLimitMiddleware(c.RateLimiter, c.GlobalLimit))
		runGroup.Use(middleware.CatalogRateLimitMiddleware(c.RateLimiter, c.CatalogLimit))
	}
	runGroup.POST("/playbook", run.RunPlaybook)

	e.GET("/api/execution/:id", exec.GetExecution)
	e.POST("/api/cancel/:id", exec.CancelExecution)
	e.POST("/api/events", ev.PostEvent)

	queueGroup := e.Group("/api/queue")
	queueGroup.POST("/lease", q.Lease)
	queueGroup.POST("/heartbeat", q.Heartbeat)
	queueGroup.POST("/complete", q.Complete)
	queueGroup.POST("/fail", q.Fail)

	e.GET("/api/keychain/:catalog_id/:name", kc.Get)
	e.POST("/api/keychain/:catalog_id/:name", kc.Upsert)

	e.GET("/api/result/resolve", rr.Resolve)
}
