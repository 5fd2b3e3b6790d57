package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

func tx(date time.Time, desc string, balanced bool) ledger.Transaction {
	return ledger.Transaction{
		ID:          uuid.New(),
		Date:        date,
		Description: desc,
		Entries: []ledger.Entry{{
			ID: uuid.New(), AccountID: uuid.New(), Side: ledger.SideDebit,
			Amount: decimal.NewFromInt(10), Unit: "USD",
		}},
		IsBalanced: balanced,
	}
}

var day = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func TestAtomicRollsBack(t *testing.T) {
	store := New()
	existing := tx(day, "existing", false)
	store.SeedTransaction(existing)

	boom := errors.New("boom")
	added := tx(day, "added", false)
	err := store.Atomic(context.Background(), func(ctx context.Context, stx storage.Tx) error {
		if err := stx.SaveTransaction(ctx, added); err != nil {
			return err
		}
		if err := stx.DeleteTransaction(ctx, existing.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Both mutations rolled back.
	_, err = store.GetTransaction(context.Background(), added.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = store.GetTransaction(context.Background(), existing.ID)
	assert.NoError(t, err)
}

func TestAtomicCommits(t *testing.T) {
	store := New()
	a := tx(day, "a", false)
	b := tx(day, "b", false)
	store.SeedTransaction(b)

	err := store.Atomic(context.Background(), func(ctx context.Context, stx storage.Tx) error {
		if err := stx.SaveTransaction(ctx, a); err != nil {
			return err
		}
		return stx.DeleteTransaction(ctx, b.ID)
	})
	require.NoError(t, err)

	_, err = store.GetTransaction(context.Background(), a.ID)
	assert.NoError(t, err)
	_, err = store.GetTransaction(context.Background(), b.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetTransactionReturnsCopy(t *testing.T) {
	store := New()
	orig := tx(day, "original", false)
	store.SeedTransaction(orig)

	got, err := store.GetTransaction(context.Background(), orig.ID)
	require.NoError(t, err)
	got.Entries[0].Amount = decimal.NewFromInt(999)
	got.Description = "mutated"

	again, err := store.GetTransaction(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Description)
	assert.True(t, again.Entries[0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestTransactionByEntry(t *testing.T) {
	store := New()
	owner := tx(day, "owner", false)
	store.SeedTransaction(owner)
	store.SeedTransaction(tx(day, "other", false))

	got, err := store.TransactionByEntry(context.Background(), owner.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)

	_, err = store.TransactionByEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFindTransactionsFilters(t *testing.T) {
	store := New()
	ctx := context.Background()

	open := tx(day, "open item", false)
	settled := tx(day.AddDate(0, 0, 1), "settled item", true)
	late := tx(day.AddDate(0, 0, 10), "late open", false)
	store.SeedTransaction(open)
	store.SeedTransaction(settled)
	store.SeedTransaction(late)

	items, total, err := store.FindTransactions(ctx, ledger.TransactionFilter{Unbalanced: true}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, it := range items {
		assert.False(t, it.IsBalanced)
	}

	from, to := day, day.AddDate(0, 0, 2)
	_, total, err = store.FindTransactions(ctx, ledger.TransactionFilter{From: &from, To: &to}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	items, total, err = store.FindTransactions(ctx, ledger.TransactionFilter{Query: "settled"}, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, settled.ID, items[0].ID)

	acct := open.Entries[0].AccountID
	items, total, err = store.FindTransactions(ctx, ledger.TransactionFilter{AccountID: &acct}, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, open.ID, items[0].ID)

	_, total, err = store.FindTransactions(ctx, ledger.TransactionFilter{ExcludeID: open.ID}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestFindTransactionsPagination(t *testing.T) {
	store := New()
	for i := 0; i < 5; i++ {
		store.SeedTransaction(tx(day.AddDate(0, 0, i), "page me", false))
	}

	items, total, err := store.FindTransactions(context.Background(), ledger.TransactionFilter{}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, items, 1, "last page holds the remainder")
}

func TestRuleOrderSurvivesDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r := ledger.Rule{ID: uuid.New(), Name: "r", Pattern: ".", SideFilter: ledger.SideFilterBoth,
			CreatedAt: day.AddDate(0, 0, i), Action: ledger.RenameAction{Replacement: "x"}}
		_, err := store.CreateRule(ctx, r)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	require.NoError(t, store.DeleteRule(ctx, ids[1]))

	listed, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[0], listed[0].ID)
	assert.Equal(t, ids[2], listed[1].ID)
}
