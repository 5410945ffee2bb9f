package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/models"
	"github.com/identkit/identkit/internal/server/repositories/users"
	"github.com/identkit/identkit/internal/server/services"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type notificationsResponse struct {
	Notifications []services.Notification `json:"notifications"`
}

type tokenResponse struct {
	Token   string             `json:"token"`
	Expires time.Time          `json:"expires"`
	User    *models.PublicUser `json:"user"`
}

func (s *Server) register(c echo.Context) error {
	var req services.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	notes, err := s.accounts.Register(c.Request().Context(), req)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusCreated, notificationsResponse{Notifications: notes})
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	result, err := s.accounts.Login(c.Request().Context(), req.Login, req.Password, refreshToken(c))
	if err != nil {
		return s.renderError(c, err)
	}

	c.SetCookie(result.Cookie)
	return c.JSON(http.StatusOK, tokenResponse{Token: result.Token, Expires: result.Expires, User: result.User})
}

func (s *Server) logout(c echo.Context) error {
	if err := s.accounts.Logout(c.Request().Context(), s.requester(c), refreshToken(c)); err != nil {
		return s.renderError(c, err)
	}
	s.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) refresh(c echo.Context) error {
	result, err := s.accounts.Refresh(c.Request().Context(), refreshToken(c))
	if err != nil {
		// a missing or consumed refresh token is an authentication failure,
		// not a missing resource
		if errors.Is(err, common.ErrorNotFound) {
			return s.renderError(c, common.ErrorUnauthorized)
		}
		return s.renderError(c, err)
	}

	c.SetCookie(result.Cookie)
	return c.JSON(http.StatusOK, tokenResponse{Token: result.Token, Expires: result.Expires, User: result.User})
}

func (s *Server) me(c echo.Context) error {
	user, err := s.accounts.Me(c.Request().Context(), s.requester(c))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.renderError(c, common.ErrorUnauthorized)
		}
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) updateMe(c echo.Context) error {
	var req services.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	notes, err := s.accounts.UpdateMe(c.Request().Context(), s.requester(c), refreshToken(c), req)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.renderError(c, common.ErrorUnauthorized)
		}
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: notes})
}

func (s *Server) deleteMe(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	if err := s.accounts.DeleteMe(c.Request().Context(), s.requester(c), req.Password); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.renderError(c, common.ErrorUnauthorized)
		}
		return s.renderError(c, err)
	}
	s.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) available(c echo.Context) error {
	f := users.Filter{
		Username: c.QueryParam("username"),
		Email:    c.QueryParam("email"),
	}
	if f == (users.Filter{}) {
		return s.renderError(c, common.ErrValidation)
	}

	free, err := s.accounts.Available(c.Request().Context(), f)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": free})
}

func (s *Server) sendPasswordRecovery(c echo.Context) error {
	var req recoveryRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	notes, err := s.accounts.SendPasswordRecovery(c.Request().Context(), s.requester(c), req.Email)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: notes})
}

func (s *Server) recoverPassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return s.renderError(c, common.ErrValidation)
	}

	err := s.accounts.RecoverPassword(c.Request().Context(), c.Param("token"), req.Password)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: []services.Notification{
		{Type: "success", Message: "Your password has been updated."},
	}})
}

func (s *Server) confirmEmail(c echo.Context) error {
	if s.accounts.ConfirmEmail(c.Request().Context(), c.Param("token")) == services.ConfirmOK {
		return c.String(http.StatusOK, "Your email address has been confirmed.")
	}
	return c.String(http.StatusNotFound, "This link is not valid!")
}

func (s *Server) resendConfirmation(c echo.Context) error {
	notes, err := s.accounts.ResendConfirmation(c.Request().Context(), s.requester(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, notificationsResponse{Notifications: notes})
}

func (s *Server) publicKey(c echo.Context) error {
	pemBytes, err := auth.PublicKeyPEM(s.credentials.PublicKey())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Blob(http.StatusOK, "application/x-pem-file", pemBytes)
}

// clearRefreshCookie overwrites the refresh cookie with an expired one.
func (s *Server) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     services.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}
