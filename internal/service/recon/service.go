// Package recon implements the reconciliation operations: merging two
// transactions, moving a single entry, splitting a transaction, and deleting
// an entry with its cascade. Every operation re-validates the structural
// invariants and recomputes the balance flag inside one unit of work.
package recon

import (
	"context"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// Store defines the transaction persistence needed by the operations.
// Atomic runs the callback as one store transaction; operations that touch
// two documents never commit half of the pair.
type Store interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	TransactionByEntry(ctx context.Context, entryID uuid.UUID) (ledger.Transaction, error)
	Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// EntryResult reports an operation outcome on a single transaction. Removed
// is set when the cascade deleted the transaction, so callers know to stop
// referencing it.
type EntryResult struct {
	Transaction ledger.Transaction
	Removed     bool
}

// MoveResult reports both sides of a move.
type MoveResult struct {
	Source      EntryResult
	Destination ledger.Transaction
}

// SplitResult reports the remainder and the newly created transaction.
type SplitResult struct {
	Original EntryResult
	Created  ledger.Transaction
}

// Service exposes the reconciliation operations.
type Service interface {
	Merge(ctx context.Context, sourceID, targetID uuid.UUID) (ledger.Transaction, error)
	MoveEntry(ctx context.Context, entryID, destinationID uuid.UUID) (MoveResult, error)
	DeleteEntry(ctx context.Context, transactionID, entryID uuid.UUID) (EntryResult, error)
	Split(ctx context.Context, transactionID uuid.UUID, entryIndices []int) (SplitResult, error)
}

type service struct {
	store Store
}

// New constructs the reconciliation service.
func New(store Store) Service { return &service{store: store} }

// Merge appends the target's entries onto the source and deletes the target.
// Both transactions must be unbalanced on opposite sides; a transaction that
// is already balanced has no side and cannot be merged this way. On any
// failure both transactions are left untouched.
func (s *service) Merge(ctx context.Context, sourceID, targetID uuid.UUID) (ledger.Transaction, error) {
	if sourceID == uuid.Nil || targetID == uuid.Nil || sourceID == targetID {
		return ledger.Transaction{}, errs.ErrInvalid
	}
	source, err := s.store.GetTransaction(ctx, sourceID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	target, err := s.store.GetTransaction(ctx, targetID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	merged, err := MergeEntries(source, target)
	if err != nil {
		return ledger.Transaction{}, err
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveTransaction(ctx, merged); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, targetID)
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return merged, nil
}

// MergeEntries combines target into source without persisting, enforcing the
// opposite-side precondition and the same-account invariant on the union.
// The rule engine reuses it for merge effects on not-yet-persisted
// transactions.
func MergeEntries(source, target ledger.Transaction) (ledger.Transaction, error) {
	sb := ledger.Evaluate(source.Entries)
	tb := ledger.Evaluate(target.Entries)
	if sb.Imbalance == nil || tb.Imbalance == nil || sb.Imbalance.Side == tb.Imbalance.Side {
		return ledger.Transaction{}, errs.ErrSameSideImbalance
	}

	combined := make([]ledger.Entry, 0, len(source.Entries)+len(target.Entries))
	combined = append(combined, source.Entries...)
	combined = append(combined, target.Entries...)
	if err := ledger.CheckOpposingEntries(combined); err != nil {
		return ledger.Transaction{}, errs.ErrInvalidMergeResult
	}

	source.Entries = combined
	source.IsBalanced = ledger.Evaluate(combined).Balanced
	return source, nil
}

// MoveEntry detaches the entry from its owning transaction and appends it to
// the destination, re-balancing both. An emptied source is deleted rather
// than persisted with no entries.
func (s *service) MoveEntry(ctx context.Context, entryID, destinationID uuid.UUID) (MoveResult, error) {
	if entryID == uuid.Nil || destinationID == uuid.Nil {
		return MoveResult{}, errs.ErrInvalid
	}
	source, err := s.store.TransactionByEntry(ctx, entryID)
	if err != nil {
		return MoveResult{}, err
	}
	if source.ID == destinationID {
		return MoveResult{}, errs.ErrInvalid
	}
	dest, err := s.store.GetTransaction(ctx, destinationID)
	if err != nil {
		return MoveResult{}, err
	}

	idx := source.EntryByID(entryID)
	if idx < 0 {
		return MoveResult{}, errs.ErrNotFound
	}
	entry := source.Entries[idx]
	source.Entries = append(source.Entries[:idx], source.Entries[idx+1:]...)
	dest.Entries = append(dest.Entries, entry)

	if err := ledger.CheckOpposingEntries(dest.Entries); err != nil {
		return MoveResult{}, err
	}
	source.IsBalanced = ledger.Evaluate(source.Entries).Balanced
	dest.IsBalanced = ledger.Evaluate(dest.Entries).Balanced

	removed := len(source.Entries) == 0
	// Destination first: if the pair cannot complete, the entry must not
	// end up referenced nowhere.
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveTransaction(ctx, dest); err != nil {
			return err
		}
		if removed {
			return tx.DeleteTransaction(ctx, source.ID)
		}
		return tx.SaveTransaction(ctx, source)
	})
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{
		Source:      EntryResult{Transaction: source, Removed: removed},
		Destination: dest,
	}, nil
}

// DeleteEntry removes one entry. Deleting the last entry cascades to the
// transaction itself and reports Removed, a defined success variant rather
// than a failure.
func (s *service) DeleteEntry(ctx context.Context, transactionID, entryID uuid.UUID) (EntryResult, error) {
	if transactionID == uuid.Nil || entryID == uuid.Nil {
		return EntryResult{}, errs.ErrInvalid
	}
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return EntryResult{}, err
	}
	idx := t.EntryByID(entryID)
	if idx < 0 {
		return EntryResult{}, errs.ErrNotFound
	}
	if len(t.Entries) == 1 {
		err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.DeleteTransaction(ctx, transactionID)
		})
		if err != nil {
			return EntryResult{}, err
		}
		return EntryResult{Removed: true}, nil
	}
	t.Entries = append(t.Entries[:idx], t.Entries[idx+1:]...)
	t.IsBalanced = ledger.Evaluate(t.Entries).Balanced
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveTransaction(ctx, t)
	})
	if err != nil {
		return EntryResult{}, err
	}
	return EntryResult{Transaction: t}, nil
}

// Split moves the entries at the given positions into a new transaction that
// keeps the original's date and description. Splitting out every entry falls
// back to delete semantics for the original.
func (s *service) Split(ctx context.Context, transactionID uuid.UUID, entryIndices []int) (SplitResult, error) {
	if transactionID == uuid.Nil || len(entryIndices) == 0 {
		return SplitResult{}, errs.ErrInvalid
	}
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return SplitResult{}, err
	}

	pick := make(map[int]bool, len(entryIndices))
	for _, i := range entryIndices {
		if i < 0 || i >= len(t.Entries) {
			return SplitResult{}, errs.ErrInvalid
		}
		pick[i] = true
	}

	var moved, remainder []ledger.Entry
	for i, e := range t.Entries {
		if pick[i] {
			moved = append(moved, e)
		} else {
			remainder = append(remainder, e)
		}
	}

	created := ledger.Transaction{
		ID:          uuid.New(),
		Date:        t.Date,
		Description: t.Description,
		Entries:     moved,
		IsBalanced:  ledger.Evaluate(moved).Balanced,
	}
	t.Entries = remainder
	t.IsBalanced = ledger.Evaluate(remainder).Balanced
	removed := len(remainder) == 0

	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveTransaction(ctx, created); err != nil {
			return err
		}
		if removed {
			return tx.DeleteTransaction(ctx, transactionID)
		}
		return tx.SaveTransaction(ctx, t)
	})
	if err != nil {
		return SplitResult{}, err
	}
	return SplitResult{
		Original: EntryResult{Transaction: t, Removed: removed},
		Created:  created,
	}, nil
}
