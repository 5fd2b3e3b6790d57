// Package transaction implements the transaction write pipeline: invariant
// guarding, unit denormalization, rule auto-apply, and the balance recompute
// that accompanies every entry-list change.
package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	FindTransactions(ctx context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, int, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	SaveTransaction(ctx context.Context, t ledger.Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Applier is the rule-engine hook run on every write before the final
// balance pass. It may mutate the transaction in place and returns the ids
// of counterpart transactions consumed by merge rules, which must be deleted
// in the same unit of work that persists t.
type Applier interface {
	ApplyAll(ctx context.Context, t *ledger.Transaction) (consumed []uuid.UUID, matched int, err error)
}

// UpdateResult reports the outcome of an update: either the persisted
// transaction, or Removed when the mutation emptied the entry list and the
// transaction was deleted instead of being persisted empty.
type UpdateResult struct {
	Transaction ledger.Transaction
	Removed     bool
}

// Service validates and persists transactions.
type Service interface {
	Validate(ctx context.Context, t ledger.Transaction) error
	Create(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error)
	Update(ctx context.Context, t ledger.Transaction) (UpdateResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	List(ctx context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, ledger.Pagination, error)
}

type service struct {
	repo    Repo
	writer  Writer
	applier Applier
}

// New constructs the transaction service. applier may be nil when no rule
// engine is attached (tests).
func New(repo Repo, writer Writer, applier Applier) Service {
	return &service{repo: repo, writer: writer, applier: applier}
}

// Validate runs the invariant guard without persisting: structural rules,
// account resolution, amount and side checks.
func (s *service) Validate(ctx context.Context, t ledger.Transaction) error {
	return s.guard(ctx, &t)
}

// guard validates t and denormalizes each entry's unit from its resolved
// account. Called before every persist.
func (s *service) guard(ctx context.Context, t *ledger.Transaction) error {
	if t.Date.IsZero() {
		return errors.New("date is required")
	}
	ids := make([]uuid.UUID, 0, len(t.Entries))
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.AccountID == uuid.Nil {
			return errors.New("entry account_id is required")
		}
		if !e.Side.Valid() {
			return errors.New("entry side must be debit or credit")
		}
		if e.Amount.Sign() <= 0 {
			return errors.New("entry amount must be > 0")
		}
		ids = append(ids, e.AccountID)
	}
	if err := ledger.CheckOpposingEntries(t.Entries); err != nil {
		return err
	}
	accounts, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range t.Entries {
		acc, ok := accounts[t.Entries[i].AccountID]
		if !ok {
			return errs.ErrUnknownAccount
		}
		t.Entries[i].Unit = acc.Unit
	}
	return nil
}

func (s *service) Create(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	if len(t.Entries) == 0 {
		return ledger.Transaction{}, errors.New("at least one entry is required")
	}
	t.ID = uuid.New()
	for i := range t.Entries {
		t.Entries[i].ID = uuid.New()
	}
	if err := s.guard(ctx, &t); err != nil {
		return ledger.Transaction{}, err
	}
	consumed, err := s.applyRules(ctx, &t)
	if err != nil {
		return ledger.Transaction{}, err
	}
	t.IsBalanced = ledger.Evaluate(t.Entries).Balanced
	if err := s.persist(ctx, t, consumed); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (s *service) Update(ctx context.Context, t ledger.Transaction) (UpdateResult, error) {
	if t.ID == uuid.Nil {
		return UpdateResult{}, errs.ErrInvalid
	}
	if _, err := s.repo.GetTransaction(ctx, t.ID); err != nil {
		return UpdateResult{}, err
	}
	if len(t.Entries) == 0 {
		// An edit that drops the last entry deletes the transaction; an
		// empty transaction is never persisted.
		if err := s.writer.DeleteTransaction(ctx, t.ID); err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Removed: true}, nil
	}
	for i := range t.Entries {
		if t.Entries[i].ID == uuid.Nil {
			t.Entries[i].ID = uuid.New()
		}
	}
	if err := s.guard(ctx, &t); err != nil {
		return UpdateResult{}, err
	}
	consumed, err := s.applyRules(ctx, &t)
	if err != nil {
		return UpdateResult{}, err
	}
	t.IsBalanced = ledger.Evaluate(t.Entries).Balanced
	if err := s.persist(ctx, t, consumed); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Transaction: t}, nil
}

func (s *service) applyRules(ctx context.Context, t *ledger.Transaction) ([]uuid.UUID, error) {
	if s.applier == nil {
		return nil, nil
	}
	consumed, _, err := s.applier.ApplyAll(ctx, t)
	return consumed, err
}

// persist writes t, deleting any merge-consumed counterparts in the same
// unit of work so no reader sees the entries in two places.
func (s *service) persist(ctx context.Context, t ledger.Transaction, consumed []uuid.UUID) error {
	if len(consumed) == 0 {
		return s.writer.SaveTransaction(ctx, t)
	}
	return s.writer.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveTransaction(ctx, t); err != nil {
			return err
		}
		for _, id := range consumed {
			if err := tx.DeleteTransaction(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	if _, err := s.repo.GetTransaction(ctx, id); err != nil {
		return err
	}
	return s.writer.DeleteTransaction(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	if id == uuid.Nil {
		return ledger.Transaction{}, errs.ErrInvalid
	}
	return s.repo.GetTransaction(ctx, id)
}

func (s *service) List(ctx context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, ledger.Pagination, error) {
	items, total, err := s.repo.FindTransactions(ctx, f, page, limit)
	if err != nil {
		return nil, ledger.Pagination{}, err
	}
	return items, ledger.NewPagination(total, page, limit), nil
}
