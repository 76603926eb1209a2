// Package server exposes the HTTP surface: one webhook endpoint per mounted
// transport plus a health probe.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Server is the HTTP front for transport webhooks.
type Server struct {
	echo *echo.Echo
	addr string
	log  *zap.Logger
}

// New constructs the server with the shared middleware chain installed.
func New(addr string, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestID())
	e.Use(Logging(log))
	e.Use(Recover(log))

	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return &Server{echo: e, addr: addr, log: log}
}

// Mount exposes a transport's webhook handler at /webhook/<name>. Gateways
// differ on verb, so both GET and POST are accepted.
func (s *Server) Mount(name string, h echo.HandlerFunc) {
	path := "/webhook/" + name
	s.echo.GET(path, h)
	s.echo.POST(path, h)
	s.log.Info("webhook mounted", zap.String("transport", name), zap.String("path", path))
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.addr))
	err := s.echo.Start(s.addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
