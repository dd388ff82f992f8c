package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts or updates a user keyed by GitHub ID.
//
// An existing row keeps its internal ID and its paid flag; only the profile
// fields GitHub may have changed (login, email, avatar) are refreshed. A new
// row gets a fresh xid and starts unpaid.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var (
		existingID string
		isPaid     bool
		createdAt  time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, is_paid, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &isPaid, &createdAt)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.IsPaid = isPaid
		user.CreatedAt = createdAt
		user.UpdatedAt = time.Now().UTC()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.IsPaid = false
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, is_paid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, is_paid, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.IsPaid,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// SetPaid flips the upgrade flag for a user.
//
// RowsAffected distinguishes "no such user" from success so a webhook for
// an unknown account is reported instead of silently dropped.
func (db *DB) SetPaid(ctx context.Context, id string, paid bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_paid = ?, updated_at = ? WHERE id = ?`,
		paid,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting paid flag for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}
