package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// requestMetrics records method, route template, status and latency of every request.
func (c *Controller) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			// Let the error handler write the response so the status is known.
			ctx.Error(err)
		}

		status := ctx.Response().Status
		if status == 0 {
			status = http.StatusOK
		}
		path := ctx.Path()
		if path == "" {
			path = "unmatched"
		}
		c.metrics.RecordHTTPRequest(ctx.Request().Method, path, status, time.Since(start).Seconds())
		return nil
	}
}
