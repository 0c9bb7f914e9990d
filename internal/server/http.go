package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPService serves an echo instance as a lifecycle Service.
type HTTPService struct {
	echo            *echo.Echo
	addr            string
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewHTTPService wraps e to listen on addr.
//
// Precondition: e and logger must be non-nil; shutdownTimeout must be positive.
func NewHTTPService(e *echo.Echo, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *zap.Logger) *HTTPService {
	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout
	return &HTTPService{echo: e, addr: addr, shutdownTimeout: shutdownTimeout, logger: logger}
}

// Start listens and serves until Stop is called.
//
// Postcondition: Returns nil after a graceful Stop, otherwise the listen error.
func (s *HTTPService) Start() error {
	s.logger.Info("http listening", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests for up to the shutdown timeout.
func (s *HTTPService) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}
