package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/session"
)

type repoHTTP struct {
	client *apiclient.Client
}

func NewRepoHTTP(client *apiclient.Client) Repository {
	return &repoHTTP{client: client}
}

func (r *repoHTTP) anonymous(ctx context.Context, path string, body, out interface{}) error {
	return r.client.DoAnonymous(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (r *repoHTTP) authenticate(ctx context.Context, path string, body interface{}) (*AuthResult, error) {
	var out AuthResult
	if err := r.anonymous(ctx, path, body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%s: backend returned no access token", path)
	}
	return &out, nil
}

func (r *repoHTTP) Login(ctx context.Context, f LoginForm) (*AuthResult, error) {
	res, err := r.authenticate(ctx, "/auth/login", f)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return res, nil
}

func (r *repoHTTP) Signup(ctx context.Context, f SignupForm) (*AuthResult, error) {
	body := struct {
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		ClinicName string `json:"clinic_name,omitempty"`
		Phone      string `json:"phone,omitempty"`
	}{f.FirstName, f.LastName, f.Email, f.Password, f.ClinicName, f.Phone}

	res, err := r.authenticate(ctx, "/auth/signup", body)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return res, nil
}

func (r *repoHTTP) Google(ctx context.Context, credential string) (*AuthResult, error) {
	res, err := r.authenticate(ctx, "/auth/google", GoogleForm{Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}
	return res, nil
}

func (r *repoHTTP) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	var out session.Tokens
	body := map[string]string{"refresh_token": refreshToken}
	if err := r.anonymous(ctx, "/auth/refresh", body, &out); err != nil {
		return session.Tokens{}, fmt.Errorf("refresh token: %w", err)
	}
	if out.AccessToken == "" {
		return session.Tokens{}, fmt.Errorf("refresh token: backend returned no access token")
	}
	return out, nil
}

func (r *repoHTTP) Logout(ctx context.Context) error {
	if err := r.client.Post(ctx, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (r *repoHTTP) ForgotPassword(ctx context.Context, email string) error {
	if err := r.anonymous(ctx, "/auth/forgot-password", ForgotPasswordForm{Email: email}, nil); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

func (r *repoHTTP) ResetPassword(ctx context.Context, token, password string) error {
	body := map[string]string{"token": token, "password": password}
	if err := r.anonymous(ctx, "/auth/reset-password", body, nil); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (r *repoHTTP) Me(ctx context.Context) (*User, error) {
	var u User
	if err := r.client.Get(ctx, "/users/me", nil, &u); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &u, nil
}

func (r *repoHTTP) UpdateMe(ctx context.Context, f ProfileForm) (*User, error) {
	var u User
	if err := r.client.Put(ctx, "/users/me", f, &u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

func (r *repoHTTP) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	if err := r.client.Put(ctx, "/users/me/password", body, nil); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
