package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/services"
)

const requesterKey = "requester"

// apiError is one element of the errors array in an error response.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}

// withRequester resolves the Authorization header into a Requester. A missing
// header yields an anonymous requester; a present but unverifiable token is
// rejected outright.
func (s *Server) withRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			c.Set(requesterKey, services.Anonymous())
			return next(c)
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return s.renderError(c, common.ErrInvalidToken)
		}
		claims, err := auth.Verify(token, s.credentials.PublicKey())
		if err != nil {
			return s.renderError(c, common.ErrInvalidToken)
		}

		c.Set(requesterKey, services.Authenticated(claims))
		return next(c)
	}
}

// requireAuth rejects anonymous requesters. Must run after withRequester.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.requester(c).IsAuthenticated() {
			return s.renderError(c, common.ErrorUnauthorized)
		}
		return next(c)
	}
}

func (s *Server) requester(c echo.Context) services.Requester {
	if r, ok := c.Get(requesterKey).(services.Requester); ok {
		return r
	}
	return services.Anonymous()
}

// refreshToken reads the refresh cookie; an absent cookie is an empty token.
func refreshToken(c echo.Context) string {
	cookie, err := c.Cookie(services.RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// renderError maps a domain error onto an HTTP status and the uniform errors
// payload. Unknown errors are logged and masked.
func (s *Server) renderError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	switch {
	case errors.Is(err, common.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrWrongCredentials):
		status, message = http.StatusUnauthorized, "Wrong credentials."
	case errors.Is(err, common.ErrWrongPassword):
		status, message = http.StatusForbidden, "The password is not correct."
	case errors.Is(err, common.ErrUsernameTaken):
		status, message = http.StatusConflict, "This username is already taken."
	case errors.Is(err, common.ErrEmailTaken):
		status, message = http.StatusConflict, "This email address is already registered."
	case errors.Is(err, common.ErrAlreadyLoggedIn):
		status, message = http.StatusBadRequest, "You are already logged in."
	case errors.Is(err, common.ErrRecoveryExpired):
		status, message = http.StatusGone, "This recovery link has expired."
	case errors.Is(err, common.ErrEmailAlreadyConfirmed):
		status, message = http.StatusBadRequest, "This email address is already confirmed."
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		status, message = http.StatusUnauthorized, "Authentication required."
	case errors.Is(err, common.ErrorNotFound):
		status, message = http.StatusNotFound, "Not found."
	default:
		s.logger.Error(c.Request().Context(), "unhandled error", "path", c.Path(), "error", err.Error())
	}

	return c.JSON(status, errorResponse{Errors: []apiError{{Type: "error", Message: message}}})
}
