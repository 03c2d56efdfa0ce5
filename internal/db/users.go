package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is an operator account scoped to a company.
type User struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a persisted refresh-token session. TokenHash stores the SHA-256
// hex digest of the opaque refresh token, never the token itself.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

const userColumns = `id, company_id, name, email, password_hash, roles, created_at, updated_at`

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	const q = `
		INSERT INTO users (id, company_id, name, email, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.Exec(ctx, q, u.ID, u.CompanyID, u.Name, u.Email, u.PasswordHash, u.Roles, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email within a company.
func (s *Store) GetUserByEmail(ctx context.Context, companyID uuid.UUID, email string) (*User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE company_id = $1 AND lower(email) = lower($2)`
	var u User
	err := s.q.QueryRow(ctx, q, companyID, email).Scan(
		&u.ID, &u.CompanyID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get user by email", err)
	}
	return &u, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var u User
	err := s.q.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.CompanyID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, wrapScan("get user", err)
	}
	return &u, nil
}

// UpdateUserPassword replaces the stored password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.q.Exec(ctx, q, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession inserts a refresh session.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	sess.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.Exec(ctx, q, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash fetches an active session by its token digest.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	const q = `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM sessions
		WHERE token_hash = $1 AND revoked_at IS NULL`
	var sess Session
	err := s.q.QueryRow(ctx, q, tokenHash).Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.RevokedAt, &sess.CreatedAt,
	)
	if err != nil {
		return nil, wrapScan("get session", err)
	}
	return &sess, nil
}

// RevokeSession marks a session as revoked.
func (s *Store) RevokeSession(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	_, err := s.q.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *Store) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	const q = `UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	_, err := s.q.Exec(ctx, q, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
