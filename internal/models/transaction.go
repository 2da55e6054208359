package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are JSON numbers on the wire; decoding accepts numbers and strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction represents a financial record owned by a single user.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	PaymentType string          `json:"paymentType"`
	Location    string          `json:"location"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// OwnerID returns the identifier of the user owning the transaction.
func (t *Transaction) OwnerID() string {
	return t.UserID
}

// CategoryStatistic is the total amount spent in one category.
// It is derived on every query and never persisted.
type CategoryStatistic struct {
	Category    string          `json:"category"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// User represents a user account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session represents a user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
