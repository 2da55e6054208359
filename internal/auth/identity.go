package auth

import (
	"context"
	"errors"
	"sync"

	"txledger/internal/models"
)

// ResolveFunc looks up the identity for a request, typically from its session.
// It returns nil for an anonymous request.
type ResolveFunc func(ctx context.Context) *models.User

// SessionBinder attaches or detaches a user to the transport session of the
// current request. Login and logout go through it.
type SessionBinder interface {
	Bind(ctx context.Context, user *models.User) error
	Unbind(ctx context.Context) error
}

// Identity is the per-request view of who is calling. It is built once per
// request: an eager user when the transport already authenticated the
// request, and a resolver run at most once on first access otherwise.
type Identity struct {
	mu       sync.Mutex
	user     *models.User
	resolved bool
	resolve  ResolveFunc
	binder   SessionBinder
}

// NewIdentity creates the identity of a request. eager may be nil; resolve
// may be nil when no lazy lookup is available; binder may be nil when the
// transport has no session to bind.
func NewIdentity(eager *models.User, resolve ResolveFunc, binder SessionBinder) *Identity {
	return &Identity{
		user:     eager,
		resolved: eager != nil || resolve == nil,
		resolve:  resolve,
		binder:   binder,
	}
}

// Current returns the caller, resolving it on first use.
func (i *Identity) Current(ctx context.Context) (*models.User, bool) {
	if i == nil {
		return nil, false
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.resolved {
		i.user = i.resolve(ctx)
		i.resolved = true
	}
	return i.user, i.user != nil
}

// Login binds user to the request's session and makes it the current identity.
func (i *Identity) Login(ctx context.Context, user *models.User) error {
	if i == nil {
		return errNoIdentity
	}
	if i.binder != nil {
		if err := i.binder.Bind(ctx, user); err != nil {
			return err
		}
	}
	i.mu.Lock()
	i.user, i.resolved = user, true
	i.mu.Unlock()
	return nil
}

// Logout destroys the request's session and clears the current identity.
func (i *Identity) Logout(ctx context.Context) error {
	if i == nil {
		return errNoIdentity
	}
	if i.binder != nil {
		if err := i.binder.Unbind(ctx); err != nil {
			return err
		}
	}
	i.mu.Lock()
	i.user, i.resolved = nil, true
	i.mu.Unlock()
	return nil
}

var errNoIdentity = errors.New("auth: request has no identity")

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored in ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Owned is implemented by records that belong to a single user.
type Owned interface {
	OwnerID() string
}

// RequireIdentity returns the caller or ErrUnauthorized.
func RequireIdentity(ctx context.Context) (*models.User, error) {
	user, ok := IdentityFromContext(ctx).Current(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// RequireOwnership returns the caller when it owns record, ErrUnauthorized otherwise.
func RequireOwnership(ctx context.Context, record Owned) (*models.User, error) {
	user, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if record.OwnerID() != user.ID {
		return nil, ErrUnauthorized
	}
	return user, nil
}
