package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/encounter"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	RollNumber *int   `json:"roll_number,omitempty"`
}

// statusFor maps an engine error to an HTTP status code.
func statusFor(err error) int {
	var inconsistent *encounter.InconsistentTableError
	switch {
	case errors.As(err, &inconsistent):
		return http.StatusConflict
	case errors.Is(err, encounter.ErrShareFailed), errors.Is(err, encounter.ErrSlugAllocationFailed):
		return http.StatusServiceUnavailable
	}
	switch encounter.KindOf(err) {
	case encounter.KindValidation, encounter.KindDomain:
		return http.StatusBadRequest
	case encounter.KindAuthentication:
		return http.StatusUnauthorized
	case encounter.KindAuthorization:
		return http.StatusForbidden
	case encounter.KindAbsence:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error response.
func (c *Controller) fail(ctx echo.Context, err error) error {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var inconsistent *encounter.InconsistentTableError
	if errors.As(err, &inconsistent) {
		n := inconsistent.RollNumber
		resp.RollNumber = &n
	}

	switch status {
	case http.StatusUnauthorized:
		ctx.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="encounters"`)
	case http.StatusInternalServerError:
		c.logger.Error("request failed",
			zap.String("method", ctx.Request().Method),
			zap.String("path", ctx.Path()),
			zap.Error(err),
		)
		resp.Error = http.StatusText(http.StatusInternalServerError)
	}
	return ctx.JSON(status, resp)
}

// httpErrorHandler renders echo's own errors (unknown routes, wrong methods)
// in the same JSON shape as engine errors.
func (c *Controller) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = ctx.JSON(he.Code, ErrorResponse{Error: msg})
		return
	}
	_ = c.fail(ctx, err)
}
