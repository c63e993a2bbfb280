package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/edgebridge/edgebridge/pkg/observability"
	"github.com/edgebridge/edgebridge/pkg/token"
)

// DefaultFallbackRole is assigned to provisioned users when the configured
// default role is not among the host's editable roles.
const DefaultFallbackRole = "subscriber"

// passwordLength matches the throwaway credential length used upstream.
const passwordLength = 128

// ProvisionError reports a failed just-in-time account creation. It
// unwraps to ErrNotFound so callers can treat it as a resolution failure.
type ProvisionError struct {
	Email string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning account for %s: %v", e.Email, e.Err)
}

func (e *ProvisionError) Unwrap() error { return ErrNotFound }

// ResolverOptions controls identity resolution behavior.
type ResolverOptions struct {
	// AutoProvision enables just-in-time account creation for verified
	// emails with no local user.
	AutoProvision bool

	// DefaultRole is assigned to provisioned users when it is among the
	// host's editable roles.
	DefaultRole string

	// FallbackRole is the host's lowest-privilege role, used when
	// DefaultRole is not assignable. Defaults to DefaultFallbackRole.
	FallbackRole string

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Resolver maps verified claims to a local user, provisioning one when
// configured to. Resolution is idempotent: lookup always precedes create,
// so re-resolving an already provisioned email only refreshes its
// last-login timestamp.
type Resolver struct {
	store UserStore
	opts  ResolverOptions
}

// NewResolver creates a resolver over the host's user store.
func NewResolver(store UserStore, opts ResolverOptions) *Resolver {
	if opts.FallbackRole == "" {
		opts.FallbackRole = DefaultFallbackRole
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{store: store, opts: opts}
}

// Resolve returns the local user for the verified claims. It returns
// ErrNotFound when no user exists and provisioning is disabled, and a
// *ProvisionError (which also matches ErrNotFound) when creation fails.
func (r *Resolver) Resolve(ctx context.Context, claims *token.Claims) (*User, error) {
	user, err := r.store.LookupByEmail(ctx, claims.Email)
	if errors.Is(err, ErrNotFound) {
		if !r.opts.AutoProvision {
			return nil, ErrNotFound
		}
		return r.provision(ctx, claims.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}

	now := r.opts.Now()

	// First SSO login for a pre-existing account: record enablement.
	enabled, err := r.store.GetMeta(ctx, user.ID, MetaEnabled)
	if err != nil {
		return nil, fmt.Errorf("reading sso metadata: %w", err)
	}
	if enabled == "" {
		if err := r.setMetaPair(ctx, user.ID, MetaEnabled, MetaEnabledAt, now); err != nil {
			return nil, err
		}
	}

	if err := r.store.SetMeta(ctx, user.ID, MetaLastLogin, formatUnix(now)); err != nil {
		return nil, fmt.Errorf("recording last sso login: %w", err)
	}

	return user, nil
}

func (r *Resolver) provision(ctx context.Context, email string) (*User, error) {
	role, err := r.resolveRole(ctx)
	if err != nil {
		return nil, &ProvisionError{Email: email, Err: err}
	}

	password, err := randomPassword(passwordLength)
	if err != nil {
		return nil, &ProvisionError{Email: email, Err: err}
	}

	user, err := r.store.Create(ctx, NewUser{
		Login:    email,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		r.opts.Logger.WithError(err).WithField("email", email).Warn("jit provisioning failed")
		return nil, &ProvisionError{Email: email, Err: err}
	}

	now := r.opts.Now()
	if err := r.setMetaPair(ctx, user.ID, MetaCreated, MetaCreatedAt, now); err != nil {
		return nil, err
	}
	if err := r.store.SetMeta(ctx, user.ID, MetaLastLogin, formatUnix(now)); err != nil {
		return nil, fmt.Errorf("recording last sso login: %w", err)
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.ProvisionedUsersTotal.Inc()
	}
	r.opts.Logger.WithFields(map[string]interface{}{
		"email": email,
		"role":  role,
	}).Info("provisioned user via sso")

	return user, nil
}

// resolveRole returns the configured default role when the host permits
// assigning it, falling back to the lowest-privilege role otherwise.
func (r *Resolver) resolveRole(ctx context.Context) (string, error) {
	roles, err := r.store.EditableRoles(ctx)
	if err != nil {
		return "", fmt.Errorf("listing editable roles: %w", err)
	}
	for _, role := range roles {
		if role == r.opts.DefaultRole {
			return r.opts.DefaultRole, nil
		}
	}
	return r.opts.FallbackRole, nil
}

func (r *Resolver) setMetaPair(ctx context.Context, userID int64, flagKey, atKey string, now time.Time) error {
	if err := r.store.SetMeta(ctx, userID, flagKey, "1"); err != nil {
		return fmt.Errorf("setting %s: %w", flagKey, err)
	}
	if err := r.store.SetMeta(ctx, userID, atKey, formatUnix(now)); err != nil {
		return fmt.Errorf("setting %s: %w", atKey, err)
	}
	return nil
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// passwordChars covers letters, digits, and the special characters the
// host commonly accepts.
const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"!@#$%^&*()-_=+[]{};:,.<>?"

// randomPassword generates a throwaway credential for provisioned
// accounts using crypto/rand.
func randomPassword(length int) (string, error) {
	max := big.NewInt(int64(len(passwordChars)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		out[i] = passwordChars[n.Int64()]
	}
	return string(out), nil
}
