package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/session"
	"github.com/clinicdesk/console/internal/platform/validation"
)

type Service struct {
	repo           Repository
	validate       *validation.Validator
	notifier       notify.Notifier
	googleClientID string
	logger         zerolog.Logger
}

func NewService(repo Repository, validate *validation.Validator, notifier notify.Notifier, googleClientID string, logger zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		validate:       validate,
		notifier:       notifier,
		googleClientID: googleClientID,
		logger:         logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// -- Sign-in --

func (s *Service) Login(ctx context.Context, f LoginForm) (*AuthResult, error) {
	f.Email = normalizeEmail(f.Email)
	if err := s.validate.Struct(f); err != nil {
		return nil, err
	}
	res, err := s.repo.Login(ctx, f)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return nil, ErrInvalidCredentials
	}
	return res, err
}

func (s *Service) Signup(ctx context.Context, f SignupForm) (*AuthResult, error) {
	f.Email = normalizeEmail(f.Email)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	if err := s.validate.Struct(f); err != nil {
		return nil, err
	}
	return s.repo.Signup(ctx, f)
}

func (s *Service) GoogleEnabled() bool {
	return s.googleClientID != ""
}

func (s *Service) GoogleClientID() string {
	return s.googleClientID
}

// GoogleLogin exchanges a Google ID token credential for backend tokens.
func (s *Service) GoogleLogin(ctx context.Context, f GoogleForm) (*AuthResult, error) {
	if !s.GoogleEnabled() {
		return nil, ErrGoogleUnavailable
	}
	if err := s.validate.Struct(f); err != nil {
		return nil, err
	}
	res, err := s.repo.Google(ctx, f.Credential)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return nil, ErrInvalidCredentials
	}
	return res, err
}

// Logout tells the backend the session is over. Failures are logged and
// swallowed; the caller clears local state regardless.
func (s *Service) Logout(ctx context.Context) {
	if sess := session.FromContext(ctx); sess == nil || !sess.Authenticated() {
		return
	}
	if err := s.repo.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.IDFromContext(ctx)).Msg("backend logout failed")
	}
}

// -- Password reset --

// RequestPasswordReset asks the backend to email a reset link. Unknown
// addresses are reported as success so the form does not reveal accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, f ForgotPasswordForm) error {
	f.Email = normalizeEmail(f.Email)
	if err := s.validate.Struct(f); err != nil {
		return err
	}
	err := s.repo.ForgotPassword(ctx, f.Email)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) ResetPassword(ctx context.Context, f ResetPasswordForm) error {
	if err := s.validate.Struct(f); err != nil {
		return err
	}
	return s.repo.ResetPassword(ctx, f.Token, f.Password)
}

// -- Account --

func (s *Service) Profile(ctx context.Context) (*User, error) {
	return s.repo.Me(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, f ProfileForm) (*User, error) {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	if err := s.validate.Struct(f); err != nil {
		return nil, err
	}
	u, err := s.repo.UpdateMe(ctx, f)
	if err != nil {
		s.notifier.Notify(ctx, notify.LevelError, "Failed to update profile.")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Profile updated successfully.")
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, f ChangePasswordForm) error {
	if err := s.validate.Struct(f); err != nil {
		return err
	}
	if f.NewPassword == f.CurrentPassword {
		ve := &validation.Errors{}
		ve.Add("new_password", "new_password must differ from current_password")
		return ve
	}
	if err := s.repo.ChangePassword(ctx, f.CurrentPassword, f.NewPassword); err != nil {
		msg := "Failed to change password."
		if m := apiclient.MessageOf(err); m != "" {
			msg = "Failed to change password: " + m
		}
		s.notifier.Notify(ctx, notify.LevelError, msg)
		return err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Password changed successfully.")
	return nil
}
