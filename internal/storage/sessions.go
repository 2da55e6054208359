package storage

import (
	"context"
	"time"

	"txledger/internal/models"
)

// CreateSession stores a session row for the given token.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		s.Token, s.UserID, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

// GetSession retrieves a session by token. Expired rows are still returned;
// callers decide validity with Session.Expired.
func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?",
		token,
	)

	var s models.Session
	if err := row.Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all sessions expired at now and reports how
// many rows were deleted.
func (db *DB) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
