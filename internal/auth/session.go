package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	applog "txledger/internal/log"
	"txledger/internal/models"
	"txledger/internal/storage"
)

// SessionTTL is the fixed lifetime of a session, counted from its creation.
// Sessions are not renewed on access.
const SessionTTL = 7 * 24 * time.Hour

// SessionStore persists sessions in the data store.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// SessionManager issues, resolves and destroys signed session cookies.
type SessionManager struct {
	store   SessionStore
	service *Service
	secret  []byte
	logger  *applog.Logger
	now     func() time.Time
}

// NewSessionManager creates a SessionManager signing cookie values with secret.
func NewSessionManager(store SessionStore, service *Service, secret string, logger *applog.Logger) *SessionManager {
	return &SessionManager{
		store:   store,
		service: service,
		secret:  []byte(secret),
		logger:  logger.WithComponent(applog.ComponentSession),
		now:     time.Now,
	}
}

// Create stores a new session for user and returns the signed cookie value
// together with the session's expiry.
func (m *SessionManager) Create(ctx context.Context, user *models.User) (string, time.Time, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}

	now := m.now()
	s := &models.Session{
		Token:     token,
		UserID:    m.service.EncodeIdentity(user),
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		m.logger.Ctx(ctx).ErrorContext(ctx, "Failed to create session", applog.FieldUserID, user.ID, applog.FieldError, err)
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return m.sign(token), s.ExpiresAt, nil
}

// Resolve returns the user of the session named by cookieValue, or nil.
// Store failures are logged and treated as no session.
func (m *SessionManager) Resolve(ctx context.Context, cookieValue string) *models.User {
	token, ok := m.verify(cookieValue)
	if !ok {
		return nil
	}

	s, err := m.store.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Ctx(ctx).ErrorContext(ctx, "Session store error", applog.FieldError, err)
		return nil
	}
	if s.Expired(m.now()) {
		return nil
	}

	user, ok := m.service.DecodeIdentity(ctx, s.UserID)
	if !ok {
		return nil
	}
	return user
}

// Destroy deletes the session named by cookieValue. Unsigned or unknown
// values are ignored.
func (m *SessionManager) Destroy(ctx context.Context, cookieValue string) error {
	token, ok := m.verify(cookieValue)
	if !ok {
		return nil
	}
	if err := m.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *SessionManager) sign(token string) string {
	return token + "." + m.signature(token)
}

func (m *SessionManager) signature(token string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *SessionManager) verify(cookieValue string) (string, bool) {
	token, sig, ok := strings.Cut(cookieValue, ".")
	if !ok || token == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.signature(token))) {
		return "", false
	}
	return token, true
}
