package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type storeRepoPG struct {
	pool   *pgxpool.Pool
	cipher *TokenCipher
}

// NewStoreRepoPG stores sessions in the console_sessions table. Tokens are
// sealed with tc when it is non-nil.
func NewStoreRepoPG(pool *pgxpool.Pool, tc *TokenCipher) Store {
	return &storeRepoPG{pool: pool, cipher: tc}
}

const sessionCols = `id, access_token, refresh_token, user_id, email, name, created_at, updated_at, expires_at`

func (r *storeRepoPG) Create(ctx context.Context, s *Session) error {
	access, refresh, err := r.seal(Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken})
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO console_sessions (`+sessionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, access, refresh, s.UserID, s.Email, s.Name, s.CreatedAt, s.UpdatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	return nil
}

func (r *storeRepoPG) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM console_sessions WHERE id = $1`, id).Scan(
		&s.ID, &s.AccessToken, &s.RefreshToken, &s.UserID, &s.Email, &s.Name,
		&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	if s.AccessToken, err = r.cipher.Open(s.AccessToken); err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	if s.RefreshToken, err = r.cipher.Open(s.RefreshToken); err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	return &s, nil
}

func (r *storeRepoPG) UpdateTokens(ctx context.Context, id string, t Tokens) error {
	access, refresh, err := r.seal(t)
	if err != nil {
		return fmt.Errorf("session update tokens: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE console_sessions
		SET access_token = $2,
		    refresh_token = COALESCE(NULLIF($3::text, ''), refresh_token),
		    updated_at = NOW()
		WHERE id = $1`, id, access, refresh)
	if err != nil {
		return fmt.Errorf("session update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepoPG) ClearTokens(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE console_sessions
		SET access_token = '', refresh_token = '', updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("session clear tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeRepoPG) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM console_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (r *storeRepoPG) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM console_sessions WHERE expires_at <= $1 RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("session purge: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("session purge: %w", err)
	}
	return ids, nil
}

func (r *storeRepoPG) seal(t Tokens) (string, string, error) {
	access, err := r.cipher.Seal(t.AccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err := r.cipher.Seal(t.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
