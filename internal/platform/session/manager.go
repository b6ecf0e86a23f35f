package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CookieName = "clinic_session"
	issuer     = "clinic-console"
)

type Config struct {
	// Key signs the session cookie (HS256).
	Key    []byte
	TTL    time.Duration
	Secure bool
}

// EndFunc is called with a session id. See OnEnd and OnSignOut.
type EndFunc func(id string)

// Manager ties the browser cookie to a stored session.
type Manager struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	endHooks []EndFunc
	outHooks []EndFunc
}

func NewManager(store Store, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) Store() Store {
	return m.store
}

// OnEnd registers fn to run when a session is gone for good: an explicit
// logout, a replacing sign-in, or expiry.
func (m *Manager) OnEnd(fn EndFunc) {
	m.mu.Lock()
	m.endHooks = append(m.endHooks, fn)
	m.mu.Unlock()
}

// OnSignOut registers fn to run when a session loses its tokens after a
// failed refresh. The session itself survives until it ends.
func (m *Manager) OnSignOut(fn EndFunc) {
	m.mu.Lock()
	m.outHooks = append(m.outHooks, fn)
	m.mu.Unlock()
}

func (m *Manager) ended(id string) {
	m.run(id, func() []EndFunc { return m.endHooks })
}

func (m *Manager) signedOut(id string) {
	m.run(id, func() []EndFunc { return m.outHooks })
}

func (m *Manager) run(id string, pick func() []EndFunc) {
	m.mu.RLock()
	hooks := append([]EndFunc(nil), pick()...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// Start creates a session for a freshly signed-in user and sets its cookie.
// The request context is updated so the rest of the request sees it.
func (m *Manager) Start(c echo.Context, who Identity, t Tokens) (*Session, error) {
	ctx := c.Request().Context()
	if old := IDFromContext(ctx); old != "" {
		m.end(ctx, old)
	}

	now := m.now().UTC()
	s := &Session{
		ID:           uuid.NewString(),
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		UserID:       who.UserID,
		Email:        who.Email,
		Name:         who.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.TTL),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	signed, err := m.sign(s)
	if err != nil {
		return nil, err
	}
	c.SetCookie(m.cookie(signed, s.ExpiresAt))
	c.SetRequest(c.Request().WithContext(WithSession(ctx, s)))
	return s, nil
}

// End deletes the request's session and clears the cookie.
func (m *Manager) End(c echo.Context) {
	if id := IDFromContext(c.Request().Context()); id != "" {
		m.end(c.Request().Context(), id)
	}
	m.Clear(c)
}

func (m *Manager) end(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Error().Err(err).Str("session_id", id).Msg("delete session")
	}
	m.ended(id)
}

// Clear expires the session cookie in the browser.
func (m *Manager) Clear(c echo.Context) {
	ck := m.cookie("", time.Unix(0, 0))
	ck.MaxAge = -1
	c.SetCookie(ck)
}

// Middleware loads the session named by the cookie into the request
// context. Invalid or expired cookies are treated as anonymous.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ck, err := c.Cookie(CookieName)
			if err != nil || ck.Value == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			id, err := m.parse(ck.Value)
			if errors.Is(err, errCookieExpired) {
				m.end(ctx, id)
				m.Clear(c)
				return next(c)
			}
			if err != nil {
				m.Clear(c)
				return next(c)
			}

			s, err := m.store.Get(ctx, id)
			switch {
			case errors.Is(err, ErrNotFound):
				m.Clear(c)
				return next(c)
			case err != nil:
				m.logger.Error().Err(err).Str("session_id", id).Msg("load session")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			case s.Expired(m.now()):
				m.end(ctx, id)
				m.Clear(c)
				return next(c)
			}

			c.SetRequest(c.Request().WithContext(WithSession(ctx, s)))
			return next(c)
		}
	}
}

// RequireAuth rejects requests whose session holds no access token.
func (m *Manager) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !FromContext(c.Request().Context()).Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// PurgeExpired removes sessions past their expiry and runs the end hooks
// for each of them.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	ids, err := m.store.PurgeExpired(ctx, m.now())
	for _, id := range ids {
		m.ended(id)
	}
	return int64(len(ids)), err
}

func (m *Manager) sign(s *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        s.ID,
		Subject:   s.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// errCookieExpired marks a correctly signed cookie past its expiry; parse
// still returns its session id so the session can be ended.
var errCookieExpired = errors.New("session cookie expired")

func (m *Manager) parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) && claims.ID != "" {
		return claims.ID, errCookieExpired
	}
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid session cookie: %w", err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("invalid session cookie: missing id")
	}
	return claims.ID, nil
}

func (m *Manager) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
