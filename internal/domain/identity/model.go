package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/clinicdesk/console/internal/platform/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrGoogleUnavailable  = errors.New("google sign-in is not configured")
)

// User is the signed-in practitioner as the backend describes them.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Phone      string    `json:"phone,omitempty"`
	ClinicName string    `json:"clinic_name,omitempty"`
	Role       string    `json:"role,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func (u User) identity() session.Identity {
	return session.Identity{UserID: u.ID, Email: u.Email, Name: u.DisplayName()}
}

// AuthResult is the backend's answer to a successful sign-in.
type AuthResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

func (a *AuthResult) tokens() session.Tokens {
	return session.Tokens{AccessToken: a.AccessToken, RefreshToken: a.RefreshToken}
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupForm struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	ClinicName      string `json:"clinic_name,omitempty" validate:"max=200"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,phone"`
}

type GoogleForm struct {
	Credential string `json:"credential" validate:"required"`
}

type ForgotPasswordForm struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordForm struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ProfileForm struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,phone"`
	ClinicName string `json:"clinic_name,omitempty" validate:"max=200"`
}

type ChangePasswordForm struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}
