package storage

import (
	"context"
	"fmt"

	"txledger/internal/models"

	"github.com/google/uuid"
)

const transactionColumns = "id, user_id, amount, category, description, payment_type, location, date, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.Scan(&t.ID, &t.UserID, &t.Amount, &t.Category, &t.Description,
		&t.PaymentType, &t.Location, &t.Date, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTransaction stores t, assigning its ID and timestamps.
func (db *DB) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	now := db.now()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Date.IsZero() {
		t.Date = now
	}
	t.Date = t.Date.UTC()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.UserID, t.Amount.String(), t.Category, t.Description,
		t.PaymentType, t.Location, t.Date, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// FindTransactionByID retrieves a single transaction by ID.
func (db *DB) FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?",
		id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// FindTransactionsByUser retrieves every transaction owned by userID,
// ordered by date descending and then by ID.
func (db *DB) FindTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = ? ORDER BY date DESC, id",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// UpdateTransaction overwrites the mutable fields of the stored transaction
// with t's values. The owner is never changed.
func (db *DB) UpdateTransaction(ctx context.Context, t *models.Transaction) error {
	t.UpdatedAt = db.now()
	t.Date = t.Date.UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE transactions
		SET amount = ?, category = ?, description = ?, payment_type = ?, location = ?, date = ?, updated_at = ?
		WHERE id = ?`,
		t.Amount.String(), t.Category, t.Description, t.PaymentType, t.Location, t.Date, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectAffected(res)
}

// DeleteTransaction removes a transaction by ID.
func (db *DB) DeleteTransaction(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectAffected(res)
}
