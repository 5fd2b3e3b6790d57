package rules

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/service/recon"
)

// ApplyAll evaluates every auto-apply rule against t in creation order.
// Later rules see the effects of earlier ones, so a later rename overwrites
// an earlier one. A rule whose effect would violate an invariant is skipped,
// leaving t as the previous rule left it.
func (s *service) ApplyAll(ctx context.Context, t *ledger.Transaction) ([]uuid.UUID, int, error) {
	consumed, matched, _, err := s.applyAll(ctx, t)
	return consumed, matched, err
}

// applyAll additionally counts the rules that mutated t, so callers that
// persist conditionally need not diff the document to detect a change.
func (s *service) applyAll(ctx context.Context, t *ledger.Transaction) ([]uuid.UUID, int, int, error) {
	all, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	var consumed []uuid.UUID
	matched, mutated := 0, 0
	for _, r := range all {
		if !r.AutoApply || !r.Matches(*t) {
			continue
		}
		matched++
		more, applied := s.applyRule(ctx, r, t, consumed)
		if applied {
			mutated++
			rulesApplied.WithLabelValues(string(r.Action.Kind())).Inc()
		}
		consumed = append(consumed, more...)
	}
	return consumed, matched, mutated, nil
}

// applyRule applies one matched rule. It returns counterpart ids consumed by
// a merge effect and whether the rule changed the transaction.
func (s *service) applyRule(ctx context.Context, r ledger.Rule, t *ledger.Transaction, alreadyConsumed []uuid.UUID) ([]uuid.UUID, bool) {
	switch a := r.Action.(type) {
	case ledger.RenameAction:
		if t.Description == a.Replacement {
			return nil, false
		}
		t.Description = a.Replacement
		return nil, true
	case ledger.ComplementAction:
		return nil, applyComplement(a, t)
	case ledger.MergeAction:
		return s.applyMerge(ctx, a, t, alreadyConsumed)
	}
	return nil, false
}

// applyComplement generates entries on the missing side whose sum equals the
// current imbalance, split across the configured destinations. A balanced
// transaction is a no-op, which also makes re-application idempotent: once
// generated entries close the gap, there is nothing left to fix.
func applyComplement(a ledger.ComplementAction, t *ledger.Transaction) bool {
	b := ledger.Evaluate(t.Entries)
	if b.Imbalance == nil {
		return false
	}
	im := *b.Imbalance

	generated := make([]ledger.Entry, 0, len(a.Destinations))
	if a.Fixed {
		for _, d := range a.Destinations {
			generated = append(generated, newGenerated(d.AccountID, im, d.Amount))
		}
	} else {
		// Split proportionally; the last destination takes the remainder so
		// the generated total equals the imbalance exactly.
		var distributed decimal.Decimal
		for i, d := range a.Destinations {
			amt := im.Amount.Mul(d.Ratio).Round(4)
			if i == len(a.Destinations)-1 {
				amt = im.Amount.Sub(distributed)
			}
			distributed = distributed.Add(amt)
			generated = append(generated, newGenerated(d.AccountID, im, amt))
		}
	}

	combined := append(append([]ledger.Entry{}, t.Entries...), generated...)
	if err := ledger.CheckOpposingEntries(combined); err != nil {
		// Generated entries would oppose an existing one; skip the rule.
		return false
	}
	t.Entries = combined
	return true
}

func newGenerated(accountID uuid.UUID, im ledger.Imbalance, amount decimal.Decimal) ledger.Entry {
	return ledger.Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Side:      im.Side,
		Amount:    amount,
		Unit:      im.Unit,
		Generated: true,
	}
}

// applyMerge searches for a counterpart transaction within the rule's date
// distance whose imbalance offsets t's, and folds it into t. Counterparts
// holding generated entries are preferred; the merge only happens when the
// preference leaves exactly one best candidate.
func (s *service) applyMerge(ctx context.Context, a ledger.MergeAction, t *ledger.Transaction, alreadyConsumed []uuid.UUID) ([]uuid.UUID, bool) {
	b := ledger.Evaluate(t.Entries)
	if b.Imbalance == nil {
		return nil, false
	}
	im := *b.Imbalance

	from := t.Date.AddDate(0, 0, -a.MaxDateDiff)
	to := t.Date.AddDate(0, 0, a.MaxDateDiff)
	candidates, err := s.repo.TransactionsInRange(ctx, from, to)
	if err != nil {
		return nil, false
	}

	taken := make(map[uuid.UUID]bool, len(alreadyConsumed))
	for _, id := range alreadyConsumed {
		taken[id] = true
	}
	textMatch := func(string) bool { return true }
	if a.Pattern != "" {
		re, err := ledger.CompilePattern(a.Pattern)
		if err != nil {
			return nil, false
		}
		textMatch = re.MatchString
	}

	var pool []ledger.Transaction
	for _, c := range candidates {
		if c.ID == t.ID || taken[c.ID] {
			continue
		}
		if !textMatch(c.Description) {
			continue
		}
		if a.AccountID != nil && !touchesAccount(c, *a.AccountID) {
			continue
		}
		cb := ledger.Evaluate(c.Entries)
		if cb.Imbalance == nil || !im.Matches(cb.Imbalance.Amount, cb.Imbalance.Side, cb.Imbalance.Unit) {
			continue
		}
		pool = append(pool, c)
	}

	// Prefer counterparts produced by complement rules.
	var preferred []ledger.Transaction
	for _, c := range pool {
		if hasGenerated(c) {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) > 0 {
		pool = preferred
	}
	if len(pool) != 1 {
		return nil, false
	}

	merged, err := recon.MergeEntries(*t, pool[0])
	if err != nil {
		return nil, false
	}
	t.Entries = merged.Entries
	t.IsBalanced = merged.IsBalanced
	return []uuid.UUID{pool[0].ID}, true
}

func hasGenerated(t ledger.Transaction) bool {
	for _, e := range t.Entries {
		if e.Generated {
			return true
		}
	}
	return false
}

func touchesAccount(t ledger.Transaction, id uuid.UUID) bool {
	for _, e := range t.Entries {
		if e.AccountID == id {
			return true
		}
	}
	return false
}
