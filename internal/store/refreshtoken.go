package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/siteops-app/apiserver/types"
)

// RefreshTokenRepository handles persistence for refresh tokens.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Replace stores a freshly issued token. Any prior token for the same
// (user, device) pair is removed in the same transaction, so a device never
// accumulates stale rows.
func (r *RefreshTokenRepository) Replace(ctx context.Context, token types.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const del = `DELETE FROM refresh_tokens WHERE user_id = $1 AND device_id = $2`
	if _, err := tx.ExecContext(ctx, del, token.UserID, token.DeviceID); err != nil {
		return err
	}

	if err := insertToken(ctx, tx, token); err != nil {
		return err
	}
	return tx.Commit()
}

// Rotate atomically consumes the old token and stores its replacement.
// If the old token row is gone (already rotated away or revoked) no write
// happens and ErrNotFound is returned, so a replayed token can never win a
// race with its own rotation. Any other row for the replacement's
// (user, device) pair is cleared in the same transaction, keeping the pair
// unique even when a rotation adopts a device id the old row lacked.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next types.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const del = `DELETE FROM refresh_tokens WHERE token_hash = $1`
	result, err := tx.ExecContext(ctx, del, oldHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	const delDevice = `DELETE FROM refresh_tokens WHERE user_id = $1 AND device_id = $2`
	if _, err := tx.ExecContext(ctx, delDevice, next.UserID, next.DeviceID); err != nil {
		return err
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByHash looks up a persisted token by the hash of its signed string.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (types.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token_hash, device_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`
	var token types.RefreshToken
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.DeviceID,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.RefreshToken{}, ErrNotFound
		}
		return types.RefreshToken{}, err
	}
	return token, nil
}

// DeleteForUser revokes tokens for a user. An empty deviceID revokes every
// device ("log out everywhere"). Deleting nothing is not an error.
func (r *RefreshTokenRepository) DeleteForUser(ctx context.Context, userID int, deviceID string) error {
	if deviceID == "" {
		const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
		_, err := r.db.ExecContext(ctx, query, userID)
		return err
	}
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1 AND device_id = $2`
	_, err := r.db.ExecContext(ctx, query, userID, deviceID)
	return err
}

// DeleteExpired clears rows whose expiry has long passed. Run by the sync
// worker loop as housekeeping.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func insertToken(ctx context.Context, tx *sql.Tx, token types.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, device_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(
		ctx,
		query,
		token.UserID,
		token.TokenHash,
		token.DeviceID,
		token.ExpiresAt,
		token.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert refresh token: %w", mapPQError(err))
	}
	return nil
}
