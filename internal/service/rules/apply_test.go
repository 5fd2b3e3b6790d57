package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage/memory"
)

func newEngine(store *memory.Store) *service {
	return New(store, store).(*service)
}

func seedRule(store *memory.Store, name, pattern string, action ledger.Action, createdAt time.Time) ledger.Rule {
	r := ledger.Rule{
		ID:         uuid.New(),
		Name:       name,
		Pattern:    pattern,
		SideFilter: ledger.SideFilterBoth,
		AutoApply:  true,
		CreatedAt:  createdAt,
		Action:     action,
	}
	store.SeedRule(r)
	return r
}

func debit(account uuid.UUID, amount string) ledger.Entry {
	return ledger.Entry{ID: uuid.New(), AccountID: account, Side: ledger.SideDebit, Amount: decimal.RequireFromString(amount), Unit: "USD"}
}

func credit(account uuid.UUID, amount string) ledger.Entry {
	return ledger.Entry{ID: uuid.New(), AccountID: account, Side: ledger.SideCredit, Amount: decimal.RequireFromString(amount), Unit: "USD"}
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func TestApplyRename(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "tidy", "^Test", ledger.RenameAction{Replacement: "Tested Transaction"}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "Test Transaction",
		Entries: []ledger.Entry{debit(uuid.New(), "10")}}
	consumed, matched, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Empty(t, consumed)
	assert.Equal(t, 1, matched)
	assert.Equal(t, "Tested Transaction", tx.Description)
}

func TestApplyRenameLaterRuleWins(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "first", "coffee", ledger.RenameAction{Replacement: "Coffee Shop"}, day(1))
	// The second rename matches the first rule's output.
	seedRule(store, "second", "coffee shop", ledger.RenameAction{Replacement: "Cafe"}, day(2))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "COFFEE 0123",
		Entries: []ledger.Entry{debit(uuid.New(), "4")}}
	_, matched, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	assert.Equal(t, "Cafe", tx.Description)
}

func TestApplyComplementRatios(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	a, b := uuid.New(), uuid.New()
	seedRule(store, "split", "rent", ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: a, Ratio: decimal.RequireFromString("0.6")},
			{AccountID: b, Ratio: decimal.RequireFromString("0.4")},
		},
	}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "rent march",
		Entries: []ledger.Entry{credit(uuid.New(), "1000")}}
	_, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Len(t, tx.Entries, 3)

	gen := tx.Entries[1:]
	assert.True(t, gen[0].Generated)
	assert.True(t, gen[1].Generated)
	assert.Equal(t, ledger.SideDebit, gen[0].Side, "generated entries land on the missing side")
	assert.True(t, gen[0].Amount.Equal(decimal.NewFromInt(600)))
	assert.True(t, gen[1].Amount.Equal(decimal.NewFromInt(400)))
	assert.True(t, ledger.Evaluate(tx.Entries).Balanced)
}

func TestApplyComplementRemainderToLast(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	third := decimal.RequireFromString("0.3333")
	seedRule(store, "thirds", "pool", ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: a, Ratio: third},
			{AccountID: b, Ratio: third},
			{AccountID: c, Ratio: decimal.RequireFromString("0.3334")},
		},
	}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "pool buy-in",
		Entries: []ledger.Entry{credit(uuid.New(), "100")}}
	_, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Len(t, tx.Entries, 4)

	// Rounding residue goes to the last destination so the sum is exact.
	var total decimal.Decimal
	for _, e := range tx.Entries[1:] {
		total = total.Add(e.Amount)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)))
	assert.True(t, ledger.Evaluate(tx.Entries).Balanced)
}

func TestApplyComplementFixed(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	fees := uuid.New()
	seedRule(store, "fee", "wire", ledger.ComplementAction{
		Fixed: true,
		Destinations: []ledger.Destination{
			{AccountID: fees, Amount: decimal.RequireFromString("25")},
		},
	}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "wire transfer",
		Entries: []ledger.Entry{credit(uuid.New(), "25")}}
	_, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Len(t, tx.Entries, 2)
	assert.True(t, tx.Entries[1].Amount.Equal(decimal.RequireFromString("25")))
	assert.True(t, ledger.Evaluate(tx.Entries).Balanced)
}

func TestApplyComplementBalancedNoop(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "fix", "ok", ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: uuid.New(), Ratio: decimal.NewFromInt(1)},
		},
	}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "ok already",
		Entries: []ledger.Entry{debit(uuid.New(), "10"), credit(uuid.New(), "10")}}
	_, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Len(t, tx.Entries, 2, "a balanced transaction gains nothing")
}

func TestApplyComplementIdempotent(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "fix", "gap", ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: uuid.New(), Ratio: decimal.NewFromInt(1)},
		},
	}, day(1))

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "gap here",
		Entries: []ledger.Entry{credit(uuid.New(), "50")}}
	_, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Len(t, tx.Entries, 2)

	// Second pass sees a closed gap and does nothing.
	_, _, err = svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Len(t, tx.Entries, 2)
}

func TestApplyComplementOpposingSkipped(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	shared := uuid.New()
	seedRule(store, "bad", "clash", ledger.ComplementAction{
		Destinations: []ledger.Destination{
			{AccountID: shared, Ratio: decimal.NewFromInt(1)},
		},
	}, day(1))

	// The generated debit would oppose the existing credit on shared.
	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "clash",
		Entries: []ledger.Entry{credit(shared, "50")}}
	_, matched, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Len(t, tx.Entries, 1, "rule is skipped, transaction untouched")
}

func TestApplyMerge(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "pair up", "payout", ledger.MergeAction{Pattern: "payout", MaxDateDiff: 5}, day(1))

	counterpart := ledger.Transaction{ID: uuid.New(), Date: day(4), Description: "payout pending",
		Entries: []ledger.Entry{credit(uuid.New(), "300")}}
	store.SeedTransaction(counterpart)

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "payout received",
		Entries: []ledger.Entry{debit(uuid.New(), "300")}}
	consumed, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{counterpart.ID}, consumed)
	assert.Len(t, tx.Entries, 2)
	assert.True(t, tx.IsBalanced)
}

func TestApplyMergePrefersGenerated(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "pair up", "payout", ledger.MergeAction{MaxDateDiff: 5}, day(1))

	plain := ledger.Transaction{ID: uuid.New(), Date: day(4), Description: "other",
		Entries: []ledger.Entry{credit(uuid.New(), "300")}}
	store.SeedTransaction(plain)

	genEntry := credit(uuid.New(), "300")
	genEntry.Generated = true
	generated := ledger.Transaction{ID: uuid.New(), Date: day(4), Description: "generated counterpart",
		Entries: []ledger.Entry{genEntry}}
	store.SeedTransaction(generated)

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "payout received",
		Entries: []ledger.Entry{debit(uuid.New(), "300")}}
	consumed, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{generated.ID}, consumed)
}

func TestApplyMergeAmbiguousSkipped(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "pair up", "payout", ledger.MergeAction{MaxDateDiff: 5}, day(1))

	for i := 0; i < 2; i++ {
		store.SeedTransaction(ledger.Transaction{ID: uuid.New(), Date: day(4), Description: "candidate",
			Entries: []ledger.Entry{credit(uuid.New(), "300")}})
	}

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "payout received",
		Entries: []ledger.Entry{debit(uuid.New(), "300")}}
	consumed, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Empty(t, consumed, "two equally good candidates: no merge")
	assert.Len(t, tx.Entries, 1)
}

func TestApplyMergeOutsideDateWindow(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	seedRule(store, "pair up", "payout", ledger.MergeAction{MaxDateDiff: 2}, day(1))

	store.SeedTransaction(ledger.Transaction{ID: uuid.New(), Date: day(20), Description: "late counterpart",
		Entries: []ledger.Entry{credit(uuid.New(), "300")}})

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "payout received",
		Entries: []ledger.Entry{debit(uuid.New(), "300")}}
	consumed, _, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Empty(t, consumed)
}

func TestApplyAllSkipsManualRules(t *testing.T) {
	store := memory.New()
	svc := newEngine(store)
	r := ledger.Rule{
		ID: uuid.New(), Name: "manual", Pattern: ".*",
		SideFilter: ledger.SideFilterBoth, AutoApply: false, CreatedAt: day(1),
		Action: ledger.RenameAction{Replacement: "changed"},
	}
	store.SeedRule(r)

	tx := ledger.Transaction{ID: uuid.New(), Date: day(5), Description: "original",
		Entries: []ledger.Entry{debit(uuid.New(), "10")}}
	_, matched, err := svc.ApplyAll(context.Background(), &tx)
	require.NoError(t, err)
	assert.Zero(t, matched)
	assert.Equal(t, "original", tx.Description)
}
