package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// WebSessionRepository handles persistence for cookie-backed web sessions.
type WebSessionRepository struct {
	db *sql.DB
}

func NewWebSessionRepository(db *sql.DB) *WebSessionRepository {
	return &WebSessionRepository{db: db}
}

func (r *WebSessionRepository) Create(ctx context.Context, session types.WebSession) error {
	const query = `
		INSERT INTO web_sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, session.Token, session.UserID, session.ExpiresAt, session.CreatedAt)
	return mapPQError(err)
}

// GetIdentity resolves a live session token to the canonical identity in a
// single query. Expired or unknown tokens and inactive users map to
// ErrNotFound.
func (r *WebSessionRepository) GetIdentity(ctx context.Context, token string, now time.Time) (types.SessionIdentity, error) {
	const query = `
		SELECT u.id, u.email, u.role
		FROM web_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2 AND u.is_active`
	var identity types.SessionIdentity
	err := r.db.QueryRowContext(ctx, query, token, now).Scan(&identity.ID, &identity.Email, &identity.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SessionIdentity{}, ErrNotFound
		}
		return types.SessionIdentity{}, err
	}
	return identity, nil
}

// Delete removes a session. Deleting an absent token is not an error, which
// keeps logout idempotent.
func (r *WebSessionRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM web_sessions WHERE token = $1`
	_, err := r.db.ExecContext(ctx, query, token)
	return err
}

// DeleteForUser removes every session belonging to a user.
func (r *WebSessionRepository) DeleteForUser(ctx context.Context, userID int) error {
	const query = `DELETE FROM web_sessions WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteExpired clears sessions past their expiry.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM web_sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
