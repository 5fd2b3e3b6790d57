package rules

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// Progress is the cumulative state of a bulk scan, emitted after each
// document.
type Progress struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Modified  int `json:"modified"`
}

// ProgressSink observes bulk-scan progress. Emit is fire-and-forget: the
// scan never waits on, or fails because of, the sink.
type ProgressSink interface {
	Emit(p Progress)
}

// SinkFunc adapts a function to a ProgressSink.
type SinkFunc func(Progress)

// Emit calls f.
func (f SinkFunc) Emit(p Progress) { f(p) }

// BulkOptions selects the transactions a bulk scan visits. With no range set
// the scan covers all currently unbalanced transactions.
type BulkOptions struct {
	From  *time.Time
	To    *time.Time
	Query string
}

// BulkFailure records one transaction whose rule application failed. The
// scan continues past it.
type BulkFailure struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Error         string    `json:"error"`
}

// BulkReport is the final outcome of a bulk scan.
type BulkReport struct {
	Progress
	Failures []BulkFailure `json:"failures,omitempty"`
}

// bulkPageSize bounds how many transactions are held in memory per scan step.
const bulkPageSize = 100

// BulkApply walks the selected transactions one at a time, applying matching
// auto-apply rules to each and persisting changed documents atomically with
// any merge-consumed counterparts. Matching and fixups are computed fresh
// from each document's current state, so re-running over already-fixed
// transactions performs no further mutation.
func (s *service) BulkApply(ctx context.Context, opts BulkOptions, sink ProgressSink) (BulkReport, error) {
	filter := ledger.TransactionFilter{Query: opts.Query}
	if opts.From != nil || opts.To != nil {
		filter.From, filter.To = opts.From, opts.To
	} else {
		filter.Unbalanced = true
	}

	// Snapshot the matching ids before mutating anything. The default filter
	// selects unbalanced transactions, so fixing a document mid-scan shrinks
	// the result set; paging over the live filter would skip the tail.
	ids, err := s.collectIDs(ctx, filter)
	if err != nil {
		return BulkReport{}, err
	}

	var report BulkReport
	consumed := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if consumed[id] {
			continue
		}
		s.bulkStep(ctx, id, &report, consumed)
		bulkProcessed.Inc()
		if sink != nil {
			sink.Emit(report.Progress)
		}
	}
	return report, nil
}

func (s *service) collectIDs(ctx context.Context, filter ledger.TransactionFilter) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, total, err := s.repo.FindTransactions(ctx, filter, page, bulkPageSize)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		if page*bulkPageSize >= total || len(items) == 0 {
			return ids, nil
		}
	}
}

// bulkStep applies rules to a single transaction. Failures are recorded on
// the report rather than propagated: one bad document must not halt
// reconciliation of the rest.
func (s *service) bulkStep(ctx context.Context, id uuid.UUID, report *BulkReport, consumedSoFar map[uuid.UUID]bool) {
	report.Processed++

	// Re-load so the mutation starts from current state, not the page
	// snapshot; the document may have changed since the scan began.
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		// Deleted mid-scan (e.g. merged away) is not a failure.
		return
	}

	consumed, matched, applied, err := s.applyAll(ctx, &t)
	if err != nil {
		report.Failures = append(report.Failures, BulkFailure{TransactionID: id, Error: err.Error()})
		return
	}
	if matched > 0 {
		report.Matched++
	}
	if applied == 0 {
		return
	}

	t.IsBalanced = ledger.Evaluate(t.Entries).Balanced
	err = s.writer.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveTransaction(ctx, t); err != nil {
			return err
		}
		for _, cid := range consumed {
			if err := tx.DeleteTransaction(ctx, cid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		report.Failures = append(report.Failures, BulkFailure{TransactionID: id, Error: err.Error()})
		return
	}
	for _, cid := range consumed {
		consumedSoFar[cid] = true
	}
	report.Modified++
}
