package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents the accounting position of an entry.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool { return s == SideDebit || s == SideCredit }

// AccountType enumerates the broad classification of an account in the ledger.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources owned by the user.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeIncome represents inflows that increase equity.
	AccountTypeIncome AccountType = "income"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultUnit is the unit assigned to accounts that do not declare one.
const DefaultUnit = "USD"

// Account represents a ledger account. Accounts form a tree via ParentID;
// the parent chain must stay acyclic and an account with children cannot be
// deleted.
type Account struct {
	ID       uuid.UUID
	Name     string
	Type     AccountType
	// Unit is the unit of value the account is denominated in. "USD" by
	// default; arbitrary tokens such as "stock:aapl" are allowed.
	Unit     string
	ParentID *uuid.UUID
	// Active indicates whether the account is active (soft-delete when false).
	Active bool
}

// Entry is one debit or credit line inside a transaction. Entries are owned
// by exactly one transaction and are never addressable on their own outside
// of it.
type Entry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Side      Side
	// Amount is strictly positive; the side carries the sign.
	Amount decimal.Decimal
	// Unit is denormalized from the referenced account at write time.
	Unit        string
	Description string
	// Generated marks entries produced by a complementary-add rule rather
	// than the user. The marker drives merge-candidate preference and keeps
	// complement application idempotent.
	Generated bool
}

// Transaction groups entries under a date and description. IsBalanced is
// derived from the entry list by Evaluate and persisted alongside every
// entry-list change; it is never mutated independently.
type Transaction struct {
	ID          uuid.UUID
	Date        time.Time
	Description string
	Entries     []Entry
	IsBalanced  bool
}

// EntryByID returns the index of the entry with the given id, or -1.
func (t Transaction) EntryByID(id uuid.UUID) int {
	for i := range t.Entries {
		if t.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Pagination describes one page of a list response. Pages is
// ceil(Total/Limit) so callers can render page controls without a second
// round trip.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination normalizes page/limit and computes the page count.
func NewPagination(total, page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

// DefaultPageLimit bounds list responses when the caller does not pick one.
const DefaultPageLimit = 20

// PageSlice cuts one page out of n items and returns the [lo,hi) bounds.
func PageSlice(n, page, limit int) (lo, hi int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	lo = (page - 1) * limit
	if lo > n {
		lo = n
	}
	hi = lo + limit
	if hi > n {
		hi = n
	}
	return lo, hi
}
