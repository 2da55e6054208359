// Package auth verifies credentials, manages sessions and carries the
// per-request identity consulted by the resolver layer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	applog "txledger/internal/log"
	"txledger/internal/models"
	"txledger/internal/storage"
)

var (
	// ErrInvalidCredentials is returned by VerifyCredentials for an unknown
	// username and for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized is returned when no identity is available, or when the
	// identity does not own the requested record.
	ErrUnauthorized = errors.New("unauthorized")
)

// UserFinder looks users up in the data store.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service holds the credential verifier and the identity codec.
// It is constructed once at startup and passed to the components that need it.
type Service struct {
	users  UserFinder
	logger *applog.Logger
}

// NewService creates a new Service.
func NewService(users UserFinder, logger *applog.Logger) *Service {
	return &Service{users: users, logger: logger.WithComponent(applog.ComponentAuth)}
}

// NormalizeUsername returns the form under which a username is stored and
// looked up.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// VerifyCredentials checks username and password against the stored hash.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Ctx(ctx).ErrorContext(ctx, "Credential lookup failed", applog.FieldError, err)
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EncodeIdentity returns the value stored in a session for user.
func (s *Service) EncodeIdentity(user *models.User) string {
	s.logger.Debug("Serializing user", applog.FieldUsername, user.Username)
	return user.ID
}

// DecodeIdentity resolves a session identifier back to a user. A user that
// no longer exists, or a failed lookup, yields (nil, false).
func (s *Service) DecodeIdentity(ctx context.Context, id string) (*models.User, bool) {
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Ctx(ctx).DebugContext(ctx, "Session user no longer exists", applog.FieldUserID, id)
		return nil, false
	}
	if err != nil {
		s.logger.Ctx(ctx).WarnContext(ctx, "Deserializing user failed", applog.FieldUserID, id, applog.FieldError, err)
		return nil, false
	}
	s.logger.Ctx(ctx).DebugContext(ctx, "Deserializing user", applog.FieldUsername, user.Username)
	return user, true
}
