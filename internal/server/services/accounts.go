package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/logging"
	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/config"
	"github.com/identkit/identkit/internal/server/mailer"
	"github.com/identkit/identkit/internal/server/models"
	"github.com/identkit/identkit/internal/server/repositories/users"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

const minPasswordLength = 8

// Notification is a user-facing message produced by a protocol, serialized
// by the transport layer as {type, message}.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Requester states whether a request carries a verified identity. The zero
// value is anonymous; there is no undefined middle state.
type Requester struct {
	claims *auth.Claims
}

// Anonymous returns the requester of an unauthenticated request.
func Anonymous() Requester { return Requester{} }

// Authenticated returns a requester backed by verified token claims.
func Authenticated(claims *auth.Claims) Requester { return Requester{claims: claims} }

func (r Requester) IsAuthenticated() bool { return r.claims != nil }

// Claims returns the verified claims, or nil for an anonymous requester.
func (r Requester) Claims() *auth.Claims { return r.claims }

// RegisterRequest carries the fields accepted on registration.
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	Newsletter bool   `json:"newsletter"`
}

// UpdateRequest carries a sparse self-service profile update. Changing the
// password requires PreviousPassword.
type UpdateRequest struct {
	Username         *string `json:"username"`
	Email            *string `json:"email"`
	Password         *string `json:"password"`
	PreviousPassword *string `json:"previousPassword"`
	Name             *string `json:"name"`
	Age              *int    `json:"age"`
	Gender           *string `json:"gender"`
	Newsletter       *bool   `json:"newsletter"`
}

// LoginResult is what a successful login or refresh hands to the transport
// layer: a bearer token with its expiry, the public user, and the refresh
// cookie to set.
type LoginResult struct {
	Token   string
	Expires time.Time
	User    *models.PublicUser
	Cookie  *http.Cookie
}

// ConfirmOutcome is the two-outcome result of email confirmation; rendering
// it is the transport layer's business, so no error is involved.
type ConfirmOutcome int

const (
	ConfirmOK ConfirmOutcome = iota
	ConfirmInvalid
)

// AccountService sequences the credential store, the session store and the
// mail dispatcher into the user-facing protocols. It is the only component
// aware of multi-step ordering and of translating persistence failures into
// domain errors.
type AccountService struct {
	credentials *CredentialService
	sessions    *SessionService
	mail        mailer.Dispatcher
	logger      logging.Logger

	cookieDomain     string
	publicBaseURL    string
	recoveryValidity time.Duration
	now              func() time.Time
}

func NewAccountService(credentials *CredentialService, sessions *SessionService, mail mailer.Dispatcher, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		credentials:      credentials,
		sessions:         sessions,
		mail:             mail,
		logger:           logger,
		cookieDomain:     cfg.CookieDomain,
		publicBaseURL:    cfg.PublicBaseURL,
		recoveryValidity: cfg.RecoveryTokenValidity,
		now:              time.Now,
	}
}

// Register creates a user with a fresh verification token and enqueues the
// confirmation email. Uniqueness collisions come back as ErrUsernameTaken or
// ErrEmailTaken; the store is never pre-checked, so two concurrent
// registrations cannot race past each other.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) ([]Notification, error) {
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}

	verificationToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Username:          req.Username,
		Email:             req.Email,
		VerificationToken: verificationToken,
		Name:              req.Name,
		Age:               req.Age,
		Gender:            req.Gender,
		Newsletter:        req.Newsletter,
	}

	if _, err := s.credentials.Create(ctx, user, req.Password); err != nil {
		return nil, translateConstraint(err)
	}

	s.sendVerificationMail(user.Email, user.Username, verificationToken)

	return []Notification{
		{Type: "success", Message: "Your account has been created!"},
		{Type: "info", Message: fmt.Sprintf("A confirmation email has been sent to %s.", user.Email)},
	}, nil
}

// Login verifies the credentials, trying the login string as an email address
// first and as a username second, and opens a fresh session. Both attempts go
// through the credential store's sign operation, so unknown logins and wrong
// passwords cost the same hash work and produce the identical error. A
// refresh token already held by the caller is discarded, and the user's
// expired sessions are purged along the way.
func (s *AccountService) Login(ctx context.Context, login, password, presentedRefreshToken string) (*LoginResult, error) {
	result, err := s.credentials.Sign(ctx, users.Filter{Email: login}, password)
	if errors.Is(err, common.ErrWrongCredentials) {
		result, err = s.credentials.Sign(ctx, users.Filter{Username: login}, password)
	}
	if err != nil {
		if errors.Is(err, common.ErrWrongCredentials) {
			return nil, common.ErrWrongCredentials
		}
		return nil, common.ErrorInternal
	}
	userID := result.User.ID

	if presentedRefreshToken != "" {
		if err := s.sessions.Remove(ctx, userID, presentedRefreshToken); err != nil {
			return nil, common.ErrorInternal
		}
	}
	if err := s.sessions.RemoveExpired(ctx, userID); err != nil {
		return nil, common.ErrorInternal
	}

	session, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &LoginResult{
		Token:   result.Token,
		Expires: result.Expires,
		User:    result.User,
		Cookie:  s.refreshCookie(session),
	}, nil
}

// Refresh exchanges a presented refresh token for a fresh bearer token and a
// rotated session. Unknown and expired tokens fail identically.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, common.ErrorNotFound
	}

	user, _, err := s.sessions.UserAndSession(ctx, refreshToken)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if user == nil {
		return nil, common.ErrorNotFound
	}

	result, err := s.credentials.RefreshAuthToken(ctx, users.Filter{ID: user.ID})
	if err != nil {
		return nil, common.ErrorInternal
	}

	rotated, err := s.sessions.Rotate(ctx, user.ID, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// lost the rotation race
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}

	return &LoginResult{
		Token:   result.Token,
		Expires: result.Expires,
		User:    result.User,
		Cookie:  s.refreshCookie(rotated),
	}, nil
}

// UpdateMe applies a self-service update. It demands both a verified bearer
// token and a live session for the presented refresh token; password changes
// must prove the previous password; an email change on a verified account
// demotes it back to unverified and restarts the confirmation workflow.
func (s *AccountService) UpdateMe(ctx context.Context, r Requester, refreshToken string, req UpdateRequest) ([]Notification, error) {
	user, err := s.requireSession(ctx, r, refreshToken)
	if err != nil {
		return nil, err
	}

	patch := users.Patch{
		Username:   req.Username,
		Email:      req.Email,
		Name:       req.Name,
		Age:        req.Age,
		Gender:     req.Gender,
		Newsletter: req.Newsletter,
	}

	if req.Password != nil {
		previous := ""
		if req.PreviousPassword != nil {
			previous = *req.PreviousPassword
		}
		if !s.credentials.IsPasswordValid(ctx, users.Filter{ID: user.ID}, previous) {
			return nil, common.ErrWrongPassword
		}
		if len(*req.Password) < minPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
		}
		hash, err := s.credentials.HashPassword(*req.Password)
		if err != nil {
			return nil, common.ErrorInternal
		}
		patch.PasswordHash = &hash
	}

	notifications := []Notification{{Type: "success", Message: "Your account has been updated."}}

	// Changing the email of a verified account revokes trust until the new
	// address is confirmed.
	var afterUpdate func()
	if req.Email != nil && *req.Email != user.Email && user.Verified {
		verificationToken, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, common.ErrorInternal
		}
		verified := false
		patch.Verified = &verified
		patch.VerificationToken = &verificationToken

		afterUpdate = func() { s.sendVerificationMail(*req.Email, user.Username, verificationToken) }
		notifications = append(notifications, Notification{
			Type:    "info",
			Message: fmt.Sprintf("A confirmation email has been sent to %s.", *req.Email),
		})
	}

	if err := s.credentials.Update(ctx, users.Filter{ID: user.ID}, patch); err != nil {
		return nil, translateConstraint(err)
	}
	if afterUpdate != nil {
		afterUpdate()
	}

	return notifications, nil
}

// Logout discards the presented refresh session. Unknown tokens are a no-op,
// so repeated logouts succeed.
func (s *AccountService) Logout(ctx context.Context, r Requester, refreshToken string) error {
	if !r.IsAuthenticated() {
		return common.ErrorNotFound
	}
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Remove(ctx, r.Claims().UserID, refreshToken)
}

// DeleteMe removes the account after re-proving the password. Sessions go
// with it.
func (s *AccountService) DeleteMe(ctx context.Context, r Requester, password string) error {
	if !r.IsAuthenticated() {
		return common.ErrorNotFound
	}
	userID := r.Claims().UserID

	if !s.credentials.IsPasswordValid(ctx, users.Filter{ID: userID}, password) {
		return common.ErrWrongPassword
	}
	return s.credentials.Remove(ctx, users.Filter{ID: userID})
}

// SendPasswordRecovery starts the recovery workflow. The response is the same
// whether or not the address exists; only an authenticated caller is told off.
func (s *AccountService) SendPasswordRecovery(ctx context.Context, r Requester, email string) ([]Notification, error) {
	if r.IsAuthenticated() {
		return nil, common.ErrAlreadyLoggedIn
	}

	generic := []Notification{{
		Type:    "info",
		Message: "If this email address exists, a recovery email has been sent to it.",
	}}

	user, err := s.credentials.Get(ctx, users.Filter{Email: email})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return generic, nil
		}
		return nil, common.ErrorInternal
	}

	recoveryToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	requestedAt := s.now()

	err = s.credentials.Update(ctx, users.Filter{ID: user.ID}, users.Patch{
		RecoveryToken:       &recoveryToken,
		RecoveryRequestedAt: &requestedAt,
	})
	if err != nil {
		return nil, common.ErrorInternal
	}

	s.sendRecoveryMail(user.Email, user.Username, recoveryToken)

	return generic, nil
}

// RecoverPassword consumes a recovery token: valid strictly inside the
// recovery window, single-use, and it sets the new password.
func (s *AccountService) RecoverPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}

	user, err := s.credentials.Get(ctx, users.Filter{RecoveryToken: token})
	if err != nil {
		return err
	}

	if s.now().Sub(user.RecoveryRequestedAt) >= s.recoveryValidity {
		return common.ErrRecoveryExpired
	}

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return common.ErrorInternal
	}

	empty := ""
	var zero time.Time
	return s.credentials.Update(ctx, users.Filter{ID: user.ID}, users.Patch{
		PasswordHash:        &hash,
		RecoveryToken:       &empty,
		RecoveryRequestedAt: &zero,
	})
}

// ConfirmEmail consumes a verification token. The outcome is a value, not an
// error: the caller renders a page either way.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) ConfirmOutcome {
	if token == "" {
		return ConfirmInvalid
	}

	user, err := s.credentials.Get(ctx, users.Filter{VerificationToken: token})
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "email confirmation lookup failed", "error", err.Error())
		}
		return ConfirmInvalid
	}

	verified := true
	empty := ""
	err = s.credentials.Update(ctx, users.Filter{ID: user.ID}, users.Patch{
		Verified:          &verified,
		VerificationToken: &empty,
	})
	if err != nil {
		s.logger.Error(ctx, "email confirmation update failed", "error", err.Error())
		return ConfirmInvalid
	}
	return ConfirmOK
}

// ResendConfirmation re-sends the pending verification email using the
// existing token.
func (s *AccountService) ResendConfirmation(ctx context.Context, r Requester) ([]Notification, error) {
	if !r.IsAuthenticated() {
		return nil, common.ErrorNotFound
	}

	user, err := s.credentials.Get(ctx, users.Filter{ID: r.Claims().UserID})
	if err != nil {
		return nil, err
	}
	if user.Verified {
		return nil, common.ErrEmailAlreadyConfirmed
	}

	s.sendVerificationMail(user.Email, user.Username, user.VerificationToken)

	return []Notification{{
		Type:    "info",
		Message: fmt.Sprintf("A confirmation email has been sent to %s.", user.Email),
	}}, nil
}

// Me returns the fresh public projection of the authenticated user.
func (s *AccountService) Me(ctx context.Context, r Requester) (*models.PublicUser, error) {
	if !r.IsAuthenticated() {
		return nil, common.ErrorNotFound
	}
	return s.credentials.PublicUser(ctx, users.Filter{ID: r.Claims().UserID})
}

// Available reports whether no user matches the filter (availability check
// for registration forms).
func (s *AccountService) Available(ctx context.Context, f users.Filter) (bool, error) {
	exists, err := s.credentials.Exists(ctx, f)
	if err != nil {
		return false, common.ErrorInternal
	}
	return !exists, nil
}

// --- helpers below ---

// requireSession enforces the double requirement of the self-service
// protocols: verified claims plus a live session for the presented refresh
// token.
func (s *AccountService) requireSession(ctx context.Context, r Requester, refreshToken string) (*models.User, error) {
	if !r.IsAuthenticated() || refreshToken == "" {
		return nil, common.ErrorNotFound
	}
	userID := r.Claims().UserID

	valid, err := s.sessions.IsValid(ctx, userID, refreshToken)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if !valid {
		return nil, common.ErrorNotFound
	}
	return s.credentials.Get(ctx, users.Filter{ID: userID})
}

// refreshCookie builds the http-only cookie carrying the session's refresh
// token, scoped to the leading-dot wildcard of the configured host.
func (s *AccountService) refreshCookie(session *models.Session) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   "." + s.cookieDomain,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
	}
}

func (s *AccountService) sendVerificationMail(email, username, token string) {
	s.mail.Submit(mailer.Task{
		Recipient: email,
		Subject:   "Please confirm your email address",
		Template:  mailer.TemplateVerification,
		Locals: map[string]string{
			"username": username,
			"link":     s.publicBaseURL + "/confirm/" + token,
		},
	})
}

func (s *AccountService) sendRecoveryMail(email, username, token string) {
	s.mail.Submit(mailer.Task{
		Recipient: email,
		Subject:   "Reset your password",
		Template:  mailer.TemplateRecovery,
		Locals: map[string]string{
			"username": username,
			"link":     s.publicBaseURL + "/recover/" + token,
			"window":   fmt.Sprintf("%d minutes", int(s.recoveryValidity.Minutes())),
		},
	})
}

// translateConstraint maps a structured uniqueness violation onto the domain
// error for the colliding field.
func translateConstraint(err error) error {
	var ce *common.ConstraintError
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Field {
	case "username":
		return common.ErrUsernameTaken
	case "email":
		return common.ErrEmailTaken
	default:
		return err
	}
}
