package graph

import (
	"context"
	"testing"

	"txledger/internal/auth"
	applog "txledger/internal/log"
	"txledger/internal/models"
	"txledger/internal/storage"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinder struct {
	bound   *models.User
	unbound bool
}

func (b *fakeBinder) Bind(_ context.Context, user *models.User) error {
	b.bound = user
	return nil
}

func (b *fakeBinder) Unbind(context.Context) error {
	b.unbound = true
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := auth.NewService(db, applog.Discard())
	return NewRegistry(NewResolver(db, db, service, applog.Discard())), db
}

func vars(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRegistryOperations(t *testing.T) {
	registry, _ := newTestRegistry(t)

	assert.ElementsMatch(t, []Operation{
		OpTransactions, OpTransaction, OpCategoryStatistics, OpAuthUser,
		OpCreateTransaction, OpUpdateTransaction, OpDeleteTransaction,
		OpLogin, OpLogout, OpSignUp,
	}, registry.Operations())
}

func TestRegistryUnknownOperation(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Execute(context.Background(), Request{Operation: "dropTables"})
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Equal(t, CodeUnknownOperation, ErrorCode(err))
}

func TestRegistryMalformedVariables(t *testing.T) {
	registry, db := newTestRegistry(t)
	alice, err := db.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)

	_, err = registry.Execute(as(alice), Request{
		Operation: OpCreateTransaction,
		Variables: json.RawMessage(`{"input": {"amount": "not-a-number", "category": "food"}}`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistryTransactionFlow(t *testing.T) {
	registry, db := newTestRegistry(t)
	alice, err := db.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	ctx := as(alice)

	created, err := registry.Execute(ctx, Request{
		Operation: OpCreateTransaction,
		Variables: json.RawMessage(`{"input": {"amount": 50, "category": "food", "userId": "someone-else"}}`),
		Include:   []string{IncludeUser},
	})
	require.NoError(t, err)
	view := created.(*TransactionView)
	assert.Equal(t, alice.ID, view.UserID)
	require.NotNil(t, view.User)
	assert.Equal(t, "alice", view.User.Username)

	got, err := registry.Execute(ctx, Request{
		Operation: OpTransaction,
		Variables: vars(t, map[string]string{"transactionId": view.ID}),
	})
	require.NoError(t, err)
	assert.Nil(t, got.(*TransactionView).User, "owner is resolved only on request")

	updated, err := registry.Execute(ctx, Request{
		Operation: OpUpdateTransaction,
		Variables: vars(t, map[string]any{"input": map[string]any{"transactionId": view.ID, "amount": "70"}}),
	})
	require.NoError(t, err)
	assert.Equal(t, "70", updated.(*TransactionView).Amount.String())

	stats, err := registry.Execute(ctx, Request{Operation: OpCategoryStatistics})
	require.NoError(t, err)
	assert.Len(t, stats, 1)

	list, err := registry.Execute(ctx, Request{Operation: OpTransactions})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := registry.Execute(ctx, Request{
		Operation: OpDeleteTransaction,
		Variables: vars(t, map[string]string{"transactionId": view.ID}),
	})
	require.NoError(t, err)
	assert.Equal(t, view.ID, deleted.(*TransactionView).ID)
}

func TestRegistryViewNeverExposesPasswordHash(t *testing.T) {
	registry, db := newTestRegistry(t)
	alice, err := db.CreateUser(context.Background(), "alice", "$2a$10$secret-hash")
	require.NoError(t, err)
	ctx := as(alice)

	created, err := registry.Execute(ctx, Request{
		Operation: OpCreateTransaction,
		Variables: json.RawMessage(`{"input": {"amount": 1, "category": "food"}}`),
		Include:   []string{IncludeUser},
	})
	require.NoError(t, err)

	out, err := json.Marshal(created)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret-hash")
	assert.Contains(t, string(out), `"username":"alice"`)
}

func TestRegistryDeleteKeepsRowWhenOwnerIsMissing(t *testing.T) {
	registry, db := newTestRegistry(t)
	alice, err := db.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	ctx := as(alice)

	created, err := registry.Execute(ctx, Request{
		Operation: OpCreateTransaction,
		Variables: json.RawMessage(`{"input": {"amount": 5, "category": "food"}}`),
	})
	require.NoError(t, err)
	id := created.(*TransactionView).ID

	require.NoError(t, db.DeleteUser(context.Background(), alice.ID))

	_, err = registry.Execute(ctx, Request{
		Operation: OpDeleteTransaction,
		Variables: vars(t, map[string]string{"transactionId": id}),
		Include:   []string{IncludeUser},
	})
	require.ErrorIs(t, err, ErrNotFound)

	kept, err := db.FindTransactionByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, kept.ID)

	deleted, err := registry.Execute(ctx, Request{
		Operation: OpDeleteTransaction,
		Variables: vars(t, map[string]string{"transactionId": id}),
	})
	require.NoError(t, err)
	assert.Nil(t, deleted.(*TransactionView).User)
}

func TestRegistryDeleteIncludesOwner(t *testing.T) {
	registry, db := newTestRegistry(t)
	alice, err := db.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	ctx := as(alice)

	created, err := registry.Execute(ctx, Request{
		Operation: OpCreateTransaction,
		Variables: json.RawMessage(`{"input": {"amount": 5, "category": "food"}}`),
	})
	require.NoError(t, err)
	id := created.(*TransactionView).ID

	deleted, err := registry.Execute(ctx, Request{
		Operation: OpDeleteTransaction,
		Variables: vars(t, map[string]string{"transactionId": id}),
		Include:   []string{IncludeUser},
	})
	require.NoError(t, err)
	view := deleted.(*TransactionView)
	require.NotNil(t, view.User)
	assert.Equal(t, "alice", view.User.Username)

	_, err = db.FindTransactionByID(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistryLoginLogout(t *testing.T) {
	registry, db := newTestRegistry(t)
	hash, err := auth.HashPassword("wonderland")
	require.NoError(t, err)
	alice, err := db.CreateUser(context.Background(), "alice", hash)
	require.NoError(t, err)

	binder := &fakeBinder{}
	identity := auth.NewIdentity(nil, func(context.Context) *models.User { return nil }, binder)
	ctx := auth.WithIdentity(context.Background(), identity)

	_, err = registry.Execute(ctx, Request{
		Operation: OpLogin,
		Variables: vars(t, map[string]any{"input": map[string]string{"username": "alice", "password": "nope"}}),
	})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Nil(t, binder.bound)

	user, err := registry.Execute(ctx, Request{
		Operation: OpLogin,
		Variables: vars(t, map[string]any{"input": map[string]string{"username": "alice", "password": "wonderland"}}),
	})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.(*models.User).ID)
	require.NotNil(t, binder.bound)
	assert.Equal(t, alice.ID, binder.bound.ID)

	// The login is visible to later operations of the same request.
	me, err := registry.Execute(ctx, Request{Operation: OpAuthUser})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, me.(*models.User).ID)

	_, err = registry.Execute(ctx, Request{Operation: OpLogout})
	require.NoError(t, err)
	assert.True(t, binder.unbound)

	me, err = registry.Execute(ctx, Request{Operation: OpAuthUser})
	require.NoError(t, err)
	assert.Nil(t, me)
}

func TestRegistrySignUp(t *testing.T) {
	registry, db := newTestRegistry(t)
	binder := &fakeBinder{}
	ctx := auth.WithIdentity(context.Background(), auth.NewIdentity(nil, nil, binder))

	signUp := Request{
		Operation: OpSignUp,
		Variables: vars(t, map[string]any{"input": map[string]string{"username": "carol", "password": "s3cret"}}),
	}

	user, err := registry.Execute(ctx, signUp)
	require.NoError(t, err)
	assert.Equal(t, "carol", user.(*models.User).Username)
	assert.Equal(t, "carol", binder.bound.Username, "sign up logs the user in")

	stored, err := db.GetUserByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("s3cret", stored.PasswordHash))

	_, err = registry.Execute(ctx, signUp)
	assert.ErrorIs(t, err, ErrInvalidInput, "duplicate username")

	_, err = registry.Execute(ctx, Request{
		Operation: OpSignUp,
		Variables: vars(t, map[string]any{"input": map[string]string{"username": " ", "password": "x"}}),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistrySignUpAndLoginShareUsernameForm(t *testing.T) {
	registry, db := newTestRegistry(t)
	credentials := vars(t, map[string]any{"input": map[string]string{"username": " carol ", "password": "pw"}})

	signUpCtx := auth.WithIdentity(context.Background(), auth.NewIdentity(nil, nil, &fakeBinder{}))
	_, err := registry.Execute(signUpCtx, Request{Operation: OpSignUp, Variables: credentials})
	require.NoError(t, err)

	stored, err := db.GetUserByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.Username)

	binder := &fakeBinder{}
	loginCtx := auth.WithIdentity(context.Background(), auth.NewIdentity(nil, nil, binder))
	user, err := registry.Execute(loginCtx, Request{Operation: OpLogin, Variables: credentials})
	require.NoError(t, err, "login with the sign-up input")
	assert.Equal(t, stored.ID, user.(*models.User).ID)
	assert.Equal(t, stored.ID, binder.bound.ID)
}

func TestErrorMessagesHideStoreDetails(t *testing.T) {
	err := wrapStore("find transactions", assert.AnError)
	assert.Equal(t, CodeStore, ErrorCode(err))
	assert.Equal(t, "store error", ErrorMessage(err))
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, "transaction not found", ErrorMessage(errTransactionNotFound))
	assert.Equal(t, CodeNotFound, ErrorCode(errTransactionNotFound))
	assert.Equal(t, "unauthorized", ErrorMessage(auth.ErrUnauthorized))
}
