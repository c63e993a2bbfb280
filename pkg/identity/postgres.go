package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// PostgresStore is a UserStore over the host's Postgres schema: a users
// table, a user_metadata key/value table, and a roles table flagging
// which role names are assignable.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LookupByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, email, role, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Login, &user.Email, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) Create(ctx context.Context, user NewUser) (*User, error) {
	created := &User{
		Login: user.Login,
		Email: user.Email,
		Role:  user.Role,
	}
	// The password is a random throwaway; only its hash is stored so the
	// account cannot be logged into with a recovered value.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (login, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, user.Login, user.Email, user.Role, hashPassword(user.Password)).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetMeta(ctx context.Context, userID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT meta_value
		FROM user_metadata
		WHERE user_id = $1 AND meta_key = $2
	`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query user metadata: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) SetMeta(ctx context.Context, userID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_metadata (user_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = $3
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert user metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) EditableRoles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM roles WHERE editable = true ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
