package graph

import (
	"context"
	"fmt"
	"slices"

	"txledger/internal/models"

	"github.com/goccy/go-json"
)

// Operation names one query or mutation of the API.
type Operation string

// Queries
const (
	OpTransactions       Operation = "transactions"
	OpTransaction        Operation = "transaction"
	OpCategoryStatistics Operation = "categoryStatistics"
	OpAuthUser           Operation = "authUser"
)

// Mutations
const (
	OpCreateTransaction Operation = "createTransaction"
	OpUpdateTransaction Operation = "updateTransaction"
	OpDeleteTransaction Operation = "deleteTransaction"
	OpLogin             Operation = "login"
	OpLogout            Operation = "logout"
	OpSignUp            Operation = "signUp"
)

// IncludeUser asks for the owner of every returned transaction.
const IncludeUser = "user"

// Request is one operation call as received from a client.
type Request struct {
	Operation Operation       `json:"operation"`
	Variables json.RawMessage `json:"variables,omitempty"`
	Include   []string        `json:"include,omitempty"`
}

// TransactionView is a transaction as returned to clients, optionally with
// its owner resolved.
type TransactionView struct {
	models.Transaction
	User *models.User `json:"user,omitempty"`
}

type handler func(ctx context.Context, req Request) (any, error)

// Registry dispatches requests to the resolver by operation name.
type Registry struct {
	resolver *Resolver
	handlers map[Operation]handler
}

// NewRegistry creates a Registry serving every Operation through r.
func NewRegistry(r *Resolver) *Registry {
	g := &Registry{resolver: r}
	g.handlers = map[Operation]handler{
		OpTransactions:       g.transactions,
		OpTransaction:        g.transaction,
		OpCategoryStatistics: g.categoryStatistics,
		OpAuthUser:           g.authUser,
		OpCreateTransaction:  g.createTransaction,
		OpUpdateTransaction:  g.updateTransaction,
		OpDeleteTransaction:  g.deleteTransaction,
		OpLogin:              g.login,
		OpLogout:             g.logout,
		OpSignUp:             g.signUp,
	}
	return g
}

// Operations returns the supported operation names, sorted.
func (g *Registry) Operations() []Operation {
	ops := make([]Operation, 0, len(g.handlers))
	for op := range g.handlers {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Execute runs req and returns its result.
func (g *Registry) Execute(ctx context.Context, req Request) (any, error) {
	h, ok := g.handlers[req.Operation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
	return h(ctx, req)
}

func decodeVariables(req Request, v any) error {
	if len(req.Variables) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Variables, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

type idVariables struct {
	TransactionID string `json:"transactionId"`
}

type inputVariables[T any] struct {
	Input T `json:"input"`
}

func (g *Registry) view(ctx context.Context, req Request, t *models.Transaction) (*TransactionView, error) {
	v := &TransactionView{Transaction: *t}
	if !slices.Contains(req.Include, IncludeUser) {
		return v, nil
	}
	owner, err := g.resolver.ResolveOwner(ctx, t)
	if err != nil {
		return nil, err
	}
	v.User = owner
	return v, nil
}

func (g *Registry) transactions(ctx context.Context, req Request) (any, error) {
	transactions, err := g.resolver.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*TransactionView, 0, len(transactions))
	for i := range transactions {
		v, err := g.view(ctx, req, &transactions[i])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (g *Registry) transaction(ctx context.Context, req Request) (any, error) {
	var vars idVariables
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	t, err := g.resolver.Transaction(ctx, vars.TransactionID)
	if err != nil {
		return nil, err
	}
	return g.view(ctx, req, t)
}

func (g *Registry) categoryStatistics(ctx context.Context, _ Request) (any, error) {
	return g.resolver.CategoryStatistics(ctx)
}

func (g *Registry) authUser(ctx context.Context, _ Request) (any, error) {
	user, err := g.resolver.AuthUser(ctx)
	if err != nil || user == nil {
		return nil, err
	}
	return user, nil
}

func (g *Registry) createTransaction(ctx context.Context, req Request) (any, error) {
	var vars inputVariables[CreateTransactionInput]
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	t, err := g.resolver.CreateTransaction(ctx, vars.Input)
	if err != nil {
		return nil, err
	}
	return g.view(ctx, req, t)
}

func (g *Registry) updateTransaction(ctx context.Context, req Request) (any, error) {
	var vars inputVariables[UpdateTransactionInput]
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	t, err := g.resolver.UpdateTransaction(ctx, vars.Input)
	if err != nil {
		return nil, err
	}
	return g.view(ctx, req, t)
}

func (g *Registry) deleteTransaction(ctx context.Context, req Request) (any, error) {
	var vars idVariables
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	// The owner is resolved first so a failed lookup leaves the row in place.
	var owner *models.User
	if slices.Contains(req.Include, IncludeUser) {
		t, err := g.resolver.Transaction(ctx, vars.TransactionID)
		if err != nil {
			return nil, err
		}
		if owner, err = g.resolver.ResolveOwner(ctx, t); err != nil {
			return nil, err
		}
	}
	t, err := g.resolver.DeleteTransaction(ctx, vars.TransactionID)
	if err != nil {
		return nil, err
	}
	return &TransactionView{Transaction: *t, User: owner}, nil
}

func (g *Registry) login(ctx context.Context, req Request) (any, error) {
	var vars inputVariables[LoginInput]
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	return g.resolver.Login(ctx, vars.Input)
}

func (g *Registry) logout(ctx context.Context, _ Request) (any, error) {
	if err := g.resolver.Logout(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"message": "Logged out successfully"}, nil
}

func (g *Registry) signUp(ctx context.Context, req Request) (any, error) {
	var vars inputVariables[SignUpInput]
	if err := decodeVariables(req, &vars); err != nil {
		return nil, err
	}
	return g.resolver.SignUp(ctx, vars.Input)
}
