// Package graph implements the query and mutation operations of the API.
// Every transaction operation checks the caller's identity first and the
// record's ownership second; a record owned by someone else is never returned.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"txledger/internal/auth"
	applog "txledger/internal/log"
	"txledger/internal/models"
	"txledger/internal/storage"

	"github.com/shopspring/decimal"
)

// TransactionStore is the document store holding transactions.
type TransactionStore interface {
	FindTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}

// UserStore is the document store holding users.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
}

// CreateTransactionInput holds the fields of a new transaction. UserID is
// accepted for compatibility and ignored: the owner is always the caller.
type CreateTransactionInput struct {
	Amount      *decimal.Decimal `json:"amount"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	PaymentType string           `json:"paymentType"`
	Location    string           `json:"location"`
	Date        *time.Time       `json:"date"`
	UserID      string           `json:"userId"`
}

// UpdateTransactionInput names the target transaction and the fields to
// change. Nil fields are left untouched. ID and UserID are never merged.
type UpdateTransactionInput struct {
	TransactionID string           `json:"transactionId"`
	ID            *string          `json:"id"`
	UserID        *string          `json:"userId"`
	Amount        *decimal.Decimal `json:"amount"`
	Category      *string          `json:"category"`
	Description   *string          `json:"description"`
	PaymentType   *string          `json:"paymentType"`
	Location      *string          `json:"location"`
	Date          *time.Time       `json:"date"`
}

// LoginInput holds login credentials.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignUpInput holds the fields of a new account.
type SignUpInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Resolver implements every API operation on top of the stores.
type Resolver struct {
	transactions TransactionStore
	users        UserStore
	auth         *auth.Service
	logger       *applog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(transactions TransactionStore, users UserStore, authService *auth.Service, logger *applog.Logger) *Resolver {
	return &Resolver{
		transactions: transactions,
		users:        users,
		auth:         authService,
		logger:       logger.WithComponent(applog.ComponentGraph),
	}
}

// Transactions lists every transaction owned by the caller.
func (r *Resolver) Transactions(ctx context.Context) ([]models.Transaction, error) {
	user, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := r.transactions.FindTransactionsByUser(ctx, user.ID)
	if err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error getting transactions", applog.FieldUserID, user.ID, applog.FieldError, err)
		return nil, wrapStore("find transactions", err)
	}
	return transactions, nil
}

// Transaction returns one transaction owned by the caller.
func (r *Resolver) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	return r.fetchOwned(ctx, id)
}

// CategoryStatistics returns the caller's spending per category.
func (r *Resolver) CategoryStatistics(ctx context.Context) ([]models.CategoryStatistic, error) {
	transactions, err := r.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	return CategoryTotals(transactions), nil
}

// CreateTransaction stores a new transaction owned by the caller.
func (r *Resolver) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	user, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(input.Category)
	if input.Amount == nil {
		return nil, fmt.Errorf("amount is required: %w", ErrInvalidInput)
	}
	if category == "" {
		return nil, fmt.Errorf("category is required: %w", ErrInvalidInput)
	}

	t := &models.Transaction{
		UserID:      user.ID,
		Amount:      *input.Amount,
		Category:    category,
		Description: input.Description,
		PaymentType: input.PaymentType,
		Location:    input.Location,
	}
	if input.Date != nil {
		t.Date = *input.Date
	}

	if err := r.transactions.InsertTransaction(ctx, t); err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error creating transaction", applog.FieldUserID, user.ID, applog.FieldError, err)
		return nil, wrapStore("insert transaction", err)
	}
	r.logger.Ctx(ctx).DebugContext(ctx, "Transaction created",
		applog.FieldUserID, user.ID,
		applog.FieldTransactionID, t.ID,
		applog.FieldCategory, t.Category)
	return t, nil
}

// UpdateTransaction merges the present input fields into a transaction owned
// by the caller and returns the stored result.
func (r *Resolver) UpdateTransaction(ctx context.Context, input UpdateTransactionInput) (*models.Transaction, error) {
	t, err := r.fetchOwned(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}

	if input.Amount != nil {
		t.Amount = *input.Amount
	}
	if input.Category != nil {
		category := strings.TrimSpace(*input.Category)
		if category == "" {
			return nil, fmt.Errorf("category cannot be empty: %w", ErrInvalidInput)
		}
		t.Category = category
	}
	if input.Description != nil {
		t.Description = *input.Description
	}
	if input.PaymentType != nil {
		t.PaymentType = *input.PaymentType
	}
	if input.Location != nil {
		t.Location = *input.Location
	}
	if input.Date != nil {
		t.Date = *input.Date
	}

	err = r.transactions.UpdateTransaction(ctx, t)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between the read and the write.
		return nil, errTransactionNotFound
	}
	if err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error updating transaction", applog.FieldTransactionID, t.ID, applog.FieldError, err)
		return nil, wrapStore("update transaction", err)
	}
	return t, nil
}

// DeleteTransaction removes a transaction owned by the caller and returns its
// last known state.
func (r *Resolver) DeleteTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := r.fetchOwned(ctx, id)
	if err != nil {
		return nil, err
	}

	err = r.transactions.DeleteTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error deleting transaction", applog.FieldTransactionID, id, applog.FieldError, err)
		return nil, wrapStore("delete transaction", err)
	}
	return t, nil
}

// ResolveOwner returns the user owning t.
func (r *Resolver) ResolveOwner(ctx context.Context, t *models.Transaction) (*models.User, error) {
	user, err := r.users.GetUserByID(ctx, t.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Ctx(ctx).WarnContext(ctx, "Transaction owner no longer exists",
			applog.FieldTransactionID, t.ID, applog.FieldUserID, t.UserID)
		return nil, errUserNotFound
	}
	if err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error getting user", applog.FieldUserID, t.UserID, applog.FieldError, err)
		return nil, wrapStore("find user", err)
	}
	return user, nil
}

// AuthUser returns the caller, or nil for an anonymous request.
func (r *Resolver) AuthUser(ctx context.Context) (*models.User, error) {
	user, _ := auth.IdentityFromContext(ctx).Current(ctx)
	return user, nil
}

// Login verifies credentials and binds the user to the request's session.
func (r *Resolver) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	username := auth.NormalizeUsername(input.Username)
	if username == "" || input.Password == "" {
		return nil, fmt.Errorf("username and password are required: %w", ErrInvalidInput)
	}

	user, err := r.auth.VerifyCredentials(ctx, username, input.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		r.logger.Ctx(ctx).InfoContext(ctx, "Login rejected", applog.FieldUsername, username)
		return nil, err
	}
	if err != nil {
		return nil, wrapStore("verify credentials", err)
	}

	if err := auth.IdentityFromContext(ctx).Login(ctx, user); err != nil {
		return nil, wrapStore("create session", err)
	}
	return user, nil
}

// Logout ends the caller's session. It succeeds for anonymous callers too.
func (r *Resolver) Logout(ctx context.Context) error {
	if err := auth.IdentityFromContext(ctx).Logout(ctx); err != nil {
		return wrapStore("destroy session", err)
	}
	return nil
}

// SignUp creates an account and logs it in.
func (r *Resolver) SignUp(ctx context.Context, input SignUpInput) (*models.User, error) {
	username := auth.NormalizeUsername(input.Username)
	if username == "" || input.Password == "" {
		return nil, fmt.Errorf("username and password are required: %w", ErrInvalidInput)
	}

	_, err := r.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, fmt.Errorf("user already exists: %w", ErrInvalidInput)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, wrapStore("find user", err)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := r.users.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, wrapStore("create user", err)
	}
	r.logger.Ctx(ctx).InfoContext(ctx, "User signed up", applog.FieldUserID, user.ID, applog.FieldUsername, user.Username)

	if err := auth.IdentityFromContext(ctx).Login(ctx, user); err != nil {
		return nil, wrapStore("create session", err)
	}
	return user, nil
}

// fetchOwned loads a transaction after checking the caller is authenticated,
// and fails unless the caller owns it.
func (r *Resolver) fetchOwned(ctx context.Context, id string) (*models.Transaction, error) {
	caller, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("transactionId is required: %w", ErrInvalidInput)
	}

	t, err := r.transactions.FindTransactionByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		r.logger.Ctx(ctx).ErrorContext(ctx, "Error getting transaction", applog.FieldTransactionID, id, applog.FieldError, err)
		return nil, wrapStore("find transaction", err)
	}

	if _, err := auth.RequireOwnership(ctx, t); err != nil {
		r.logger.Ctx(ctx).WarnContext(ctx, "Rejected access to transaction of another user",
			applog.FieldUserID, caller.ID, applog.FieldTransactionID, id)
		return nil, err
	}
	return t, nil
}
