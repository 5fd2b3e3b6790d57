package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")
)

// Invariant violations raised by the transaction guard and the reconciliation
// operations. Each wraps ErrUnprocessable or ErrConflict so handlers can map
// whole families with errors.Is instead of enumerating every sentinel.
var (
	// ErrOpposingEntries marks a transaction that debits and credits the same account.
	ErrOpposingEntries = wrap(ErrUnprocessable, "a transaction cannot debit and credit the same account")
	// ErrUnknownAccount marks an entry whose account reference does not resolve.
	ErrUnknownAccount = wrap(ErrUnprocessable, "entry references an unknown account")
	// ErrSameSideImbalance marks a merge of two transactions unbalanced on the same side.
	ErrSameSideImbalance = wrap(ErrConflict, "both transactions are unbalanced on the same side")
	// ErrInvalidMergeResult marks a merge that would produce opposing same-account entries.
	ErrInvalidMergeResult = wrap(ErrConflict, "merge would debit and credit the same account")
	// ErrBadRatioSum marks a complement rule whose destination ratios do not sum to 1.
	ErrBadRatioSum = wrap(ErrUnprocessable, "destination ratios must sum to 1.0")
	// ErrDateDiffRange marks a merge rule whose max date difference is outside [1,15].
	ErrDateDiffRange = wrap(ErrUnprocessable, "max date difference must be between 1 and 15 days")
	// ErrAccountHasChildren marks a delete of an account that still has child accounts.
	ErrAccountHasChildren = wrap(ErrConflict, "account has child accounts")
	// ErrAccountCycle marks a parent assignment that would make an account its own ancestor.
	ErrAccountCycle = wrap(ErrUnprocessable, "account cannot be its own ancestor")
)

func wrap(sentinel error, msg string) error {
	return &violation{sentinel: sentinel, msg: msg}
}

type violation struct {
	sentinel error
	msg      string
}

func (v *violation) Error() string { return v.msg }
func (v *violation) Unwrap() error { return v.sentinel }
