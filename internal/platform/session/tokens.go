package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RefreshFunc exchanges a refresh token for a new credential pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// TokenSource hands the request's access token to the API client and
// performs the refresh/logout dance on its behalf. Concurrent refreshes for
// the same session collapse into one backend call.
type TokenSource struct {
	manager *Manager
	refresh RefreshFunc
	group   singleflight.Group
	logger  zerolog.Logger
}

func NewTokenSource(m *Manager, refresh RefreshFunc, logger zerolog.Logger) *TokenSource {
	return &TokenSource{manager: m, refresh: refresh, logger: logger}
}

func (ts *TokenSource) Token(ctx context.Context) string {
	if h := holderFrom(ctx); h != nil {
		return h.get().AccessToken
	}
	return ""
}

// Refresh obtains a new access token for the request's session. If another
// request already rotated the stored token, that token is reused instead of
// spending the refresh token twice.
func (ts *TokenSource) Refresh(ctx context.Context) (string, error) {
	h := holderFrom(ctx)
	if h == nil {
		return "", ErrNoSession
	}
	cur := h.get()

	v, err, _ := ts.group.Do(cur.ID, func() (interface{}, error) {
		store := ts.manager.store
		stored, err := store.Get(ctx, cur.ID)
		if err != nil {
			return Tokens{}, fmt.Errorf("reload session: %w", err)
		}
		if stored.AccessToken != "" && stored.AccessToken != cur.AccessToken {
			return Tokens{AccessToken: stored.AccessToken, RefreshToken: stored.RefreshToken}, nil
		}
		if stored.RefreshToken == "" {
			return Tokens{}, ErrNoRefreshToken
		}
		if ts.refresh == nil {
			return Tokens{}, fmt.Errorf("refresh not configured")
		}

		t, err := ts.refresh(ctx, stored.RefreshToken)
		if err != nil {
			return Tokens{}, err
		}
		if t.AccessToken == "" {
			return Tokens{}, fmt.Errorf("refresh returned no access token")
		}
		if err := store.UpdateTokens(ctx, cur.ID, t); err != nil {
			return Tokens{}, err
		}
		ts.logger.Debug().Str("session_id", cur.ID).Msg("access token refreshed")
		return t, nil
	})
	if err != nil {
		return "", err
	}
	t := v.(Tokens)
	h.setTokens(t)
	return t.AccessToken, nil
}

// Logout forgets the session's tokens after an unrecoverable 401. The
// session row stays so pending notices can still reach the browser; only
// the sign-out hooks run.
func (ts *TokenSource) Logout(ctx context.Context) {
	h := holderFrom(ctx)
	if h == nil {
		return
	}
	id := h.get().ID
	h.clearTokens()
	if err := ts.manager.store.ClearTokens(ctx, id); err != nil {
		ts.logger.Error().Err(err).Str("session_id", id).Msg("clear session tokens")
	}
	ts.logger.Info().Str("session_id", id).Msg("session signed out after failed refresh")
	ts.manager.signedOut(id)
}
