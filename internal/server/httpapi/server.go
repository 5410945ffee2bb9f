// Package httpapi exposes the account protocols over HTTP. The surface is
// JSON except for the email-confirmation landing page, which renders plain
// text for humans following a link. Refresh tokens travel only in an
// http-only cookie, bearer tokens only in the Authorization header.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/identkit/identkit/internal/logging"
	"github.com/identkit/identkit/internal/server/services"
)

// Server wires the account protocols onto an echo router.
type Server struct {
	echo        *echo.Echo
	accounts    *services.AccountService
	credentials *services.CredentialService
	logger      logging.Logger
}

func NewServer(accounts *services.AccountService, credentials *services.CredentialService, logger logging.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		accounts:    accounts,
		credentials: credentials,
		logger:      logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo

	e.POST("/users", s.register)
	e.POST("/users/login", s.login, s.withRequester)
	e.POST("/users/logout", s.logout, s.withRequester, s.requireAuth)
	e.POST("/users/refresh", s.refresh)

	e.GET("/users/me", s.me, s.withRequester, s.requireAuth)
	e.PATCH("/users/me", s.updateMe, s.withRequester, s.requireAuth)
	e.DELETE("/users/me", s.deleteMe, s.withRequester, s.requireAuth)

	e.GET("/users/available", s.available)

	e.POST("/users/recover", s.sendPasswordRecovery, s.withRequester)
	e.POST("/users/recover/:token", s.recoverPassword)

	e.GET("/confirm/:token", s.confirmEmail)
	e.POST("/users/confirmation", s.resendConfirmation, s.withRequester, s.requireAuth)

	e.GET("/users/key", s.publicKey)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
