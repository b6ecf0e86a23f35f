package identity

import (
	"context"

	"github.com/clinicdesk/console/internal/platform/session"
)

// Repository is the backend's authentication and account surface.
type Repository interface {
	Login(ctx context.Context, f LoginForm) (*AuthResult, error)
	Signup(ctx context.Context, f SignupForm) (*AuthResult, error)
	Google(ctx context.Context, credential string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (session.Tokens, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Me(ctx context.Context) (*User, error)
	UpdateMe(ctx context.Context, f ProfileForm) (*User, error)
	ChangePassword(ctx context.Context, current, next string) error
}
