// Package rules implements the declarative rule engine: pattern-matched
// rename, complementary-add, and merge rules, evaluated on every write
// (auto-apply) or in bulk over a selected slice of the ledger.
package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// ratioTolerance is how far destination ratios may drift from summing to 1.
var ratioTolerance = decimal.RequireFromString("0.001")

// Repo defines the reads needed by the engine.
type Repo interface {
	ListRules(ctx context.Context) ([]ledger.Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (ledger.Rule, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error)
	FindTransactions(ctx context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, int, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
}

// Writer defines the writes needed by the engine.
type Writer interface {
	CreateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	UpdateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Service exposes rule authoring, the per-write apply hook, and the bulk scan.
type Service interface {
	Create(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	Update(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (ledger.Rule, error)
	List(ctx context.Context) ([]ledger.Rule, error)

	// ApplyAll evaluates every auto-apply rule against t in creation order,
	// mutating it in place. It returns the ids of counterpart transactions
	// consumed by merge effects and the number of rules that matched.
	ApplyAll(ctx context.Context, t *ledger.Transaction) (consumed []uuid.UUID, matched int, err error)

	// BulkApply scans unbalanced transactions (or a caller-supplied range)
	// and applies auto-apply rules to each, emitting progress after every
	// document. Per-document failures are recorded and skipped.
	BulkApply(ctx context.Context, opts BulkOptions, sink ProgressSink) (BulkReport, error)
}

type service struct {
	repo   Repo
	writer Writer
}

// New constructs the rule engine.
func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) Create(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	if err := s.validate(ctx, r); err != nil {
		return ledger.Rule{}, err
	}
	return s.writer.CreateRule(ctx, r)
}

func (s *service) Update(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	if r.ID == uuid.Nil {
		return ledger.Rule{}, errs.ErrInvalid
	}
	current, err := s.repo.GetRule(ctx, r.ID)
	if err != nil {
		return ledger.Rule{}, err
	}
	r.CreatedAt = current.CreatedAt
	if err := s.validate(ctx, r); err != nil {
		return ledger.Rule{}, err
	}
	return s.writer.UpdateRule(ctx, r)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	if _, err := s.repo.GetRule(ctx, id); err != nil {
		return err
	}
	return s.writer.DeleteRule(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Rule, error) {
	if id == uuid.Nil {
		return ledger.Rule{}, errs.ErrInvalid
	}
	return s.repo.GetRule(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Rule, error) {
	return s.repo.ListRules(ctx)
}

func (s *service) validate(ctx context.Context, r ledger.Rule) error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Pattern == "" {
		return errors.New("pattern is required")
	}
	if _, err := ledger.CompilePattern(r.Pattern); err != nil {
		return errors.New("pattern is not a valid regular expression")
	}
	if r.SideFilter == "" || !r.SideFilter.Valid() {
		return errors.New("side filter must be debit, credit or both")
	}
	if r.Action == nil {
		return errors.New("rule action is required")
	}
	switch a := r.Action.(type) {
	case ledger.RenameAction:
		if a.Replacement == "" {
			return errors.New("rename replacement is required")
		}
	case ledger.ComplementAction:
		return s.validateComplement(ctx, a)
	case ledger.MergeAction:
		if a.MaxDateDiff < 1 || a.MaxDateDiff > 15 {
			return errs.ErrDateDiffRange
		}
		if a.Pattern != "" {
			if _, err := ledger.CompilePattern(a.Pattern); err != nil {
				return errors.New("merge pattern is not a valid regular expression")
			}
		}
	default:
		return errors.New("unknown rule action")
	}
	return nil
}

func (s *service) validateComplement(ctx context.Context, a ledger.ComplementAction) error {
	if len(a.Destinations) == 0 {
		return errors.New("at least one destination is required")
	}
	ids := make([]uuid.UUID, 0, len(a.Destinations))
	var ratioSum decimal.Decimal
	for _, d := range a.Destinations {
		if d.AccountID == uuid.Nil {
			return errors.New("destination account_id is required")
		}
		ids = append(ids, d.AccountID)
		if a.Fixed {
			if d.Amount.Sign() <= 0 {
				return errors.New("destination amount must be > 0")
			}
		} else {
			if d.Ratio.Sign() <= 0 {
				return errors.New("destination ratio must be > 0")
			}
			ratioSum = ratioSum.Add(d.Ratio)
		}
	}
	if !a.Fixed && ratioSum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(ratioTolerance) {
		return errs.ErrBadRatioSum
	}
	accounts, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return errs.ErrUnknownAccount
		}
	}
	return nil
}
