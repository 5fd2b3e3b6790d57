// Package storage declares the unit-of-work contract shared by the service
// layer and the store implementations. Reconciliation operations and rule
// merges touch two transactions at once; both stores expose Atomic so the
// pair is committed or rolled back as one.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/ledger"
)

// Tx is the transactional view handed to an Atomic callback. Every write
// issued through it becomes visible only when the callback returns nil.
type Tx interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	SaveTransaction(ctx context.Context, t ledger.Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
}
