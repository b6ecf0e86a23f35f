package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/session"
)

type Handler struct {
	svc      *Service
	sessions *session.Manager
	notifier notify.Notifier
}

func NewHandler(svc *Service, sessions *session.Manager, notifier notify.Notifier) *Handler {
	return &Handler{svc: svc, sessions: sessions, notifier: notifier}
}

// RegisterRoutes mounts sign-in under /auth and the signed-in user's
// account under /account.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	auth := api.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/signup", h.Signup)
	auth.POST("/google", h.GoogleLogin)
	auth.GET("/google/config", h.GoogleConfig)
	auth.POST("/logout", h.Logout)
	auth.POST("/forgot-password", h.ForgotPassword)
	auth.POST("/reset-password", h.ResetPassword)
	auth.GET("/session", h.CurrentSession)

	account := api.Group("/account", h.sessions.RequireAuth())
	account.GET("/profile", h.GetProfile)
	account.PUT("/profile", h.UpdateProfile)
	account.PUT("/password", h.ChangePassword)
}

type sessionView struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type authResponse struct {
	User    User        `json:"user"`
	Session sessionView `json:"session"`
}

func viewOf(s *session.Session) sessionView {
	if s == nil || !s.Authenticated() {
		return sessionView{}
	}
	exp := s.ExpiresAt
	return sessionView{
		Authenticated: true,
		UserID:        s.UserID,
		Email:         s.Email,
		Name:          s.Name,
		ExpiresAt:     &exp,
	}
}

func authError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrGoogleUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return err
}

// signIn turns a backend auth result into a console session.
func (h *Handler) signIn(c echo.Context, res *AuthResult, status int, welcome string) error {
	s, err := h.sessions.Start(c, res.User.identity(), res.tokens())
	if err != nil {
		return err
	}
	h.notifier.Notify(c.Request().Context(), notify.LevelSuccess, welcome)
	return c.JSON(status, authResponse{User: res.User, Session: viewOf(s)})
}

func (h *Handler) Login(c echo.Context) error {
	var f LoginForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), f)
	if err != nil {
		return authError(err)
	}
	return h.signIn(c, res, http.StatusOK, "Welcome back, "+res.User.DisplayName()+"!")
}

func (h *Handler) Signup(c echo.Context) error {
	var f SignupForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Signup(c.Request().Context(), f)
	if err != nil {
		return authError(err)
	}
	return h.signIn(c, res, http.StatusCreated, "Account created successfully.")
}

func (h *Handler) GoogleLogin(c echo.Context) error {
	var f GoogleForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.GoogleLogin(c.Request().Context(), f)
	if err != nil {
		return authError(err)
	}
	return h.signIn(c, res, http.StatusOK, "Welcome, "+res.User.DisplayName()+"!")
}

func (h *Handler) GoogleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"enabled":   h.svc.GoogleEnabled(),
		"client_id": h.svc.GoogleClientID(),
	})
}

func (h *Handler) Logout(c echo.Context) error {
	h.svc.Logout(c.Request().Context())
	h.sessions.End(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var f ForgotPasswordForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), f); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "If an account exists for that email, a reset link is on its way.",
	})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var f ResetPasswordForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.ResetPassword(c.Request().Context(), f); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset. You can now sign in."})
}

func (h *Handler) CurrentSession(c echo.Context) error {
	return c.JSON(http.StatusOK, viewOf(session.FromContext(c.Request().Context())))
}

func (h *Handler) GetProfile(c echo.Context) error {
	u, err := h.svc.Profile(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var f ProfileForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var f ChangePasswordForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.ChangePassword(c.Request().Context(), f); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
