package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no local user matches the verified email.
var ErrNotFound = errors.New("identity: user not found")

// Provenance metadata keys recorded against users who arrive via the
// bridge. Hosts may surface these, e.g. to later disable password login
// for SSO-managed accounts.
const (
	MetaCreated   = "sso_created"
	MetaCreatedAt = "sso_created_at"
	MetaEnabled   = "sso_enabled"
	MetaEnabledAt = "sso_enabled_at"
	MetaLastLogin = "sso_last_login"
)

// User is the host application's user entity, reduced to the fields the
// bridge needs.
type User struct {
	ID        int64
	Login     string
	Email     string
	Role      string
	CreatedAt time.Time
}

// NewUser carries the fields for just-in-time account creation. Password
// is a throwaway random credential; the account is expected to sign in
// through the bridge.
type NewUser struct {
	Login    string
	Email    string
	Password string
	Role     string
}

// UserStore is the host application's user storage, consumed as an
// interface. Email matching follows the host store's own collation.
type UserStore interface {
	// LookupByEmail returns the user with exactly this email, or
	// ErrNotFound.
	LookupByEmail(ctx context.Context, email string) (*User, error)

	// Create inserts a new user and returns it with its assigned ID.
	Create(ctx context.Context, user NewUser) (*User, error)

	// GetMeta returns the metadata value for key, or the empty string
	// when the key has never been set.
	GetMeta(ctx context.Context, userID int64, key string) (string, error)

	// SetMeta stores a metadata value for key, replacing any previous one.
	SetMeta(ctx context.Context, userID int64, key, value string) error

	// EditableRoles lists the role names the host permits assigning.
	EditableRoles(ctx context.Context) ([]string, error)
}
