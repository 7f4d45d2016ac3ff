package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/security"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/models"
)

// Messages shown to users. Login and forgot-password answers must not reveal whether an account
// exists.
const (
	msgInvalidLogin      = "invalid username or password"
	msgNotActivated      = "account is not activated, please check your email for the activation link"
	msgUsernameTaken     = "username already taken"
	msgEmailTaken        = "email already registered"
	msgInvalidActivation = "invalid activation code"
	msgActivationUnknown = "activation code not found or already used"
	msgActivationExpired = "activation code has expired"
	msgInvalidReset      = "this password reset link is invalid or has expired"
	msgWrongPassword     = "current password is incorrect"
)

// dummyHash is compared against when the login name is unknown, so both failure paths cost one
// bcrypt comparison.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZyP6Uq0fC2kDfbKZ3M1bRy"

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	ActivateAccount(ctx context.Context, code string, now time.Time) (*models.User, error)
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

type TokenStore interface {
	ReplacePasswordReset(ctx context.Context, reset *models.PasswordReset) error
	GetPasswordReset(ctx context.Context, tokenHash string) (*models.PasswordReset, error)
	MarkPasswordResetUsed(ctx context.Context, id uint, at time.Time) error
	CreateRememberMe(ctx context.Context, token *models.RememberMeToken) error
	ActiveRememberMe(ctx context.Context, userID uint, now time.Time) ([]models.RememberMeToken, error)
	DeleteRememberMe(ctx context.Context, id uint) error
	DeleteRememberMeForUser(ctx context.Context, userID uint) error
}

type Mailer interface {
	SendActivation(ctx context.Context, to, name, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Config holds token lifetimes.
type Config struct {
	ActivationTTL    time.Duration
	PasswordResetTTL time.Duration
	RememberMeTTL    time.Duration
}

// Service runs the account lifecycle: registration, activation, login, remember-me and password
// resets.
type Service struct {
	users     UserStore
	tokens    TokenStore
	mailer    Mailer
	hasher    PasswordHasher
	validator *validation.Validator
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

func NewService(users UserStore, tokens TokenStore, mailer Mailer, hasher PasswordHasher, v *validation.Validator, cfg Config, log *zap.Logger) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		mailer:    mailer,
		hasher:    hasher,
		validator: v,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string `form:"username" validate:"required,min=3,max=30,alphanum"`
	Email           string `form:"email" validate:"required,email,max=255"`
	Password        string `form:"password" validate:"required,min=8,maxbytes=72"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `form:"first_name" validate:"max=100"`
	LastName        string `form:"last_name" validate:"max=100"`
}

// Register creates an inactive account and mails its activation link.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	taken, err := s.users.UsernameTaken(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, errors.AlreadyExists(msgUsernameTaken).WithDetails(map[string]string{"username": msgUsernameTaken})
	}
	taken, err = s.users.EmailTaken(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, errors.AlreadyExists(msgEmailTaken).WithDetails(map[string]string{"email": msgEmailTaken})
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := security.NewToken()
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(s.cfg.ActivationTTL)
	user := &models.User{
		Username:            in.Username,
		Email:               in.Email,
		PasswordHash:        passwordHash,
		Role:                models.RoleUser,
		ActivationCode:      &code,
		ActivationExpiresAt: &expires,
		Profile: &models.UserProfile{
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
		},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			return nil, errors.AlreadyExists("username or email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.SendActivation(ctx, user.Email, user.DisplayName(), code, expires); err != nil {
		s.log.Error("failed to send activation email", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Activate consumes an activation code.
func (s *Service) Activate(ctx context.Context, code string) (*models.User, error) {
	if !security.IsToken(code) {
		return nil, errors.Validation(msgInvalidActivation)
	}

	user, err := s.users.ActivateAccount(ctx, code, s.now())
	switch {
	case errors.Is(err, models.ErrTokenNotFound):
		return nil, errors.NotFound(msgActivationUnknown)
	case errors.Is(err, models.ErrTokenExpired):
		return nil, errors.Validation(msgActivationExpired)
	case err != nil:
		return nil, fmt.Errorf("activate account: %w", err)
	}

	s.log.Info("account activated", zap.Uint("user_id", user.ID))
	return user, nil
}

// LoginInput is the login form.
type LoginInput struct {
	Login    string `form:"login" validate:"required,max=255"`
	Password string `form:"password" validate:"required"`
}

// Login checks credentials. Unknown accounts and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	in.Login = strings.TrimSpace(in.Login)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByLogin(ctx, in.Login)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.hasher.Verify(dummyHash, in.Password)
			return nil, errors.InvalidCredentials(msgInvalidLogin)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return nil, errors.InvalidCredentials(msgInvalidLogin)
	}
	if !user.IsActive {
		return nil, errors.Forbidden(msgNotActivated)
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login time", zap.Uint("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	s.log.Info("user logged in", zap.Uint("user_id", user.ID))
	return user, nil
}

type rememberMeCookie struct {
	UserID uint   `json:"user_id"`
	Token  string `json:"token"`
}

// IssueRememberMe stores a new remember-me token for the user and returns the cookie value.
func (s *Service) IssueRememberMe(ctx context.Context, userID uint) (string, error) {
	token, err := security.NewToken()
	if err != nil {
		return "", err
	}
	tokenHash, err := s.hasher.Hash(token)
	if err != nil {
		return "", fmt.Errorf("hash remember-me token: %w", err)
	}

	if err := s.tokens.CreateRememberMe(ctx, &models.RememberMeToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: s.now().Add(s.cfg.RememberMeTTL),
	}); err != nil {
		return "", fmt.Errorf("store remember-me token: %w", err)
	}

	raw, err := json.Marshal(rememberMeCookie{UserID: userID, Token: token})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AutoLogin exchanges a remember-me cookie for its user. The presented token is consumed and a
// replacement cookie value is returned.
func (s *Service) AutoLogin(ctx context.Context, cookieValue string) (*models.User, string, error) {
	cookie, ok := decodeRememberMe(cookieValue)
	if !ok {
		return nil, "", errors.Unauthorized("malformed remember-me cookie")
	}

	candidates, err := s.tokens.ActiveRememberMe(ctx, cookie.UserID, s.now())
	if err != nil {
		return nil, "", fmt.Errorf("load remember-me tokens: %w", err)
	}

	var match *models.RememberMeToken
	for i := range candidates {
		if s.hasher.Verify(candidates[i].TokenHash, cookie.Token) {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		return nil, "", errors.Unauthorized("remember-me token not recognised")
	}
	if err := s.tokens.DeleteRememberMe(ctx, match.ID); err != nil {
		return nil, "", fmt.Errorf("consume remember-me token: %w", err)
	}

	user, err := s.users.GetByID(ctx, cookie.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, "", errors.Unauthorized("remember-me user no longer exists")
		}
		return nil, "", err
	}
	if !user.IsActive {
		return nil, "", errors.Unauthorized("remember-me user is not active")
	}

	next, err := s.IssueRememberMe(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login time", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	s.log.Info("user logged in from remember-me cookie", zap.Uint("user_id", user.ID))
	return user, next, nil
}

func decodeRememberMe(value string) (rememberMeCookie, bool) {
	var cookie rememberMeCookie
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return cookie, false
	}
	if err := json.Unmarshal(raw, &cookie); err != nil {
		return cookie, false
	}
	return cookie, cookie.UserID != 0 && security.IsToken(cookie.Token)
}

// Logout revokes every remember-me token of the user.
func (s *Service) Logout(ctx context.Context, userID uint) error {
	if err := s.tokens.DeleteRememberMeForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke remember-me tokens: %w", err)
	}
	s.log.Info("user logged out", zap.Uint("user_id", userID))
	return nil
}

// ForgotPasswordInput is the forgot-password form.
type ForgotPasswordInput struct {
	Email string `form:"email" validate:"required,email"`
}

// RequestPasswordReset mails a reset link when the address belongs to an active account. The
// result is the same whether or not it does.
func (s *Service) RequestPasswordReset(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validator.Validate(in); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.log.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		s.log.Debug("password reset requested for inactive account", zap.Uint("user_id", user.ID))
		return nil
	}

	token, err := security.NewToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.cfg.PasswordResetTTL)
	if err := s.tokens.ReplacePasswordReset(ctx, &models.PasswordReset{
		UserID:    user.ID,
		TokenHash: security.HashToken(token),
		ExpiresAt: expires,
	}); err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.DisplayName(), token, expires); err != nil {
		s.log.Error("failed to send password reset email", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPasswordInput is the reset-password form.
type ResetPasswordInput struct {
	Token           string `form:"token" validate:"required"`
	Password        string `form:"password" validate:"required,min=8,maxbytes=72"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

// CheckResetToken reports whether token names a usable reset, so the form is only shown for
// valid links.
func (s *Service) CheckResetToken(ctx context.Context, token string) error {
	_, err := s.lookupReset(ctx, token)
	return err
}

func (s *Service) lookupReset(ctx context.Context, token string) (*models.PasswordReset, error) {
	if !security.IsToken(token) {
		return nil, errors.Validation(msgInvalidReset)
	}
	reset, err := s.tokens.GetPasswordReset(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			return nil, errors.Validation(msgInvalidReset)
		}
		return nil, fmt.Errorf("lookup password reset: %w", err)
	}
	if !s.now().Before(reset.ExpiresAt) {
		return nil, errors.Validation(msgInvalidReset)
	}
	return reset, nil
}

// ResetPassword sets a new password from a reset link. The link is consumed and every
// remember-me token of the account is revoked.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	reset, err := s.lookupReset(ctx, in.Token)
	if err != nil {
		return err
	}
	if err := s.validator.Validate(in); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// The token is claimed first; a concurrent submission finds it already used.
	if err := s.tokens.MarkPasswordResetUsed(ctx, reset.ID, s.now()); err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			return errors.Validation(msgInvalidReset)
		}
		return fmt.Errorf("consume password reset: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, reset.UserID, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.tokens.DeleteRememberMeForUser(ctx, reset.UserID); err != nil {
		return fmt.Errorf("revoke remember-me tokens: %w", err)
	}

	s.log.Info("password reset", zap.Uint("user_id", reset.UserID))
	return nil
}

// ChangePasswordInput is the account page's password form.
type ChangePasswordInput struct {
	CurrentPassword string `form:"current_password" validate:"required"`
	Password        string `form:"password" validate:"required,min=8,maxbytes=72"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

// ChangePassword replaces the password of a logged-in user after checking the current one.
// Remember-me tokens issued before the change are revoked.
func (s *Service) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	if err := s.validator.Validate(in); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(user.PasswordHash, in.CurrentPassword) {
		return errors.Validation(msgWrongPassword).WithDetails(map[string]string{"current_password": msgWrongPassword})
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.tokens.DeleteRememberMeForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke remember-me tokens: %w", err)
	}

	s.log.Info("password changed", zap.Uint("user_id", userID))
	return nil
}
