package rules

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage/memory"
)

func seedAccount(store *memory.Store) uuid.UUID {
	id := uuid.New()
	store.SeedAccount(ledger.Account{ID: id, Name: "Account", Type: ledger.AccountTypeExpense, Unit: "USD", Active: true})
	return id
}

func validRule(account uuid.UUID) ledger.Rule {
	return ledger.Rule{
		Name:       "split",
		Pattern:    "rent",
		SideFilter: ledger.SideFilterBoth,
		AutoApply:  true,
		Action: ledger.ComplementAction{
			Destinations: []ledger.Destination{{AccountID: account, Ratio: decimal.NewFromInt(1)}},
		},
	}
}

func TestRuleCreate(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)

	created, err := svc.Create(context.Background(), validRule(acc))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestRuleCreateValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)
	ctx := context.Background()

	r := validRule(acc)
	r.Name = ""
	_, err := svc.Create(ctx, r)
	assert.Error(t, err)

	r = validRule(acc)
	r.Pattern = "(["
	_, err = svc.Create(ctx, r)
	assert.Error(t, err)

	r = validRule(acc)
	r.SideFilter = "sideways"
	_, err = svc.Create(ctx, r)
	assert.Error(t, err)

	r = validRule(acc)
	r.Action = nil
	_, err = svc.Create(ctx, r)
	assert.Error(t, err)
}

func TestRuleCreateRatioSum(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)

	r := validRule(acc)
	r.Action = ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: acc, Ratio: decimal.RequireFromString("0.5")},
			{AccountID: seedAccount(store), Ratio: decimal.RequireFromString("0.4")},
		},
	}
	_, err := svc.Create(context.Background(), r)
	assert.ErrorIs(t, err, errs.ErrBadRatioSum)

	// Within tolerance is fine.
	r.Action = ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: acc, Ratio: decimal.RequireFromString("0.5")},
			{AccountID: seedAccount(store), Ratio: decimal.RequireFromString("0.4995")},
		},
	}
	_, err = svc.Create(context.Background(), r)
	assert.NoError(t, err)
}

func TestRuleCreateUnknownDestination(t *testing.T) {
	store := memory.New()
	svc := New(store, store)

	r := validRule(uuid.New()) // never seeded
	_, err := svc.Create(context.Background(), r)
	assert.ErrorIs(t, err, errs.ErrUnknownAccount)
}

func TestRuleCreateDateDiffRange(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)
	ctx := context.Background()

	for _, diff := range []int{0, 16, -1} {
		r := validRule(acc)
		r.Action = ledger.MergeAction{MaxDateDiff: diff}
		_, err := svc.Create(ctx, r)
		assert.ErrorIs(t, err, errs.ErrDateDiffRange, "diff=%d", diff)
	}

	r := validRule(acc)
	r.Action = ledger.MergeAction{MaxDateDiff: 15}
	_, err := svc.Create(ctx, r)
	assert.NoError(t, err)
}

func TestRuleUpdatePreservesCreatedAt(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)

	created, err := svc.Create(context.Background(), validRule(acc))
	require.NoError(t, err)

	update := validRule(acc)
	update.ID = created.ID
	update.Name = "renamed"
	updated, err := svc.Update(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "renamed", updated.Name)
}

func TestRuleDelete(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)

	created, err := svc.Create(context.Background(), validRule(acc))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), created.ID))

	_, err = svc.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), created.ID), errs.ErrNotFound)
}

func TestRuleListCreationOrder(t *testing.T) {
	store := memory.New()
	svc := New(store, store)
	acc := seedAccount(store)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		created, err := svc.Create(context.Background(), validRule(acc))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	listed, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, r := range listed {
		assert.Equal(t, ids[i], r.ID)
	}
}
