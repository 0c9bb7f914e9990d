package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/encounter"
)

const callerKey = "caller"

// Authenticator resolves HTTP Basic credentials to an engine identity.
//
// Bad credentials must yield an error matching encounter.ErrUnauthenticated;
// any other error is treated as an infrastructure failure.
type Authenticator interface {
	Identify(ctx context.Context, username, password string) (encounter.Caller, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, username, password string) (encounter.Caller, error)

// Identify calls f.
func (f AuthenticatorFunc) Identify(ctx context.Context, username, password string) (encounter.Caller, error) {
	return f(ctx, username, password)
}

// identify resolves Basic credentials, when present, into the request's caller.
// Requests without credentials proceed anonymously; the service decides which
// operations need an identity.
func (c *Controller) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		username, password, ok := ctx.Request().BasicAuth()
		if !ok {
			return next(ctx)
		}
		if c.auth == nil {
			return c.fail(ctx, encounter.ErrUnauthenticated)
		}
		caller, err := c.auth.Identify(ctx.Request().Context(), username, password)
		if err != nil {
			c.logger.Debug("credential check failed",
				zap.String("username", username),
				zap.Error(err),
			)
			return c.fail(ctx, err)
		}
		ctx.Set(callerKey, caller)
		return next(ctx)
	}
}

// callerFrom returns the identity resolved by identify, or the anonymous caller.
func callerFrom(ctx echo.Context) encounter.Caller {
	caller, _ := ctx.Get(callerKey).(encounter.Caller)
	return caller
}
