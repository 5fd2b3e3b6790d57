package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/errs"
)

// CheckOpposingEntries enforces the structural rule that no two entries in
// one transaction may reference the same account with opposite sides,
// irrespective of amounts. Same account and same side is always permitted.
func CheckOpposingEntries(entries []Entry) error {
	sides := make(map[uuid.UUID]map[Side]bool, len(entries))
	for _, e := range entries {
		if sides[e.AccountID] == nil {
			sides[e.AccountID] = make(map[Side]bool, 2)
		}
		sides[e.AccountID][e.Side] = true
		if sides[e.AccountID][e.Side.Opposite()] {
			return errs.ErrOpposingEntries
		}
	}
	return nil
}

// TransactionFilter narrows transaction scans. Zero-value fields are ignored.
type TransactionFilter struct {
	From *time.Time
	To   *time.Time
	// Query is matched case-insensitively against the description. It is
	// tried as a regular expression first and falls back to a substring
	// match when it does not compile.
	Query string
	// AccountID keeps only transactions with at least one entry on the account.
	AccountID *uuid.UUID
	// Unbalanced keeps only transactions whose persisted balance flag is false.
	Unbalanced bool
	// ExcludeID drops a single transaction from the results.
	ExcludeID uuid.UUID
}
