// Package search implements the complementary match search: time-windowed
// lookups of entries and of whole transactions whose imbalance offsets a
// given target.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/busday"
	"github.com/tealbook/ledgerd/internal/ledger"
)

// Repo defines the reads needed by the search service. Scans are bounded by
// the business-day window, so the range read stays small.
type Repo interface {
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
}

// Options carries the optional filters shared by both search modes.
type Options struct {
	// BusinessDays sizes the window around the reference date; zero or
	// negative falls back to the calendar default.
	BusinessDays int
	// ExcludeID drops one transaction (the one being reconciled).
	ExcludeID uuid.UUID
	// AccountID keeps only entries on the account.
	AccountID *uuid.UUID
	// Side keeps only entries of that side.
	Side *ledger.Side
	// MinAmount/MaxAmount bound entry amounts, inclusive.
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	// Text is matched against the owning transaction's description,
	// case-insensitively, as regex with a substring fallback.
	Text  string
	Page  int
	Limit int
}

// EntryMatch is an entry joined with its owning transaction and account.
type EntryMatch struct {
	Entry          ledger.Entry
	TransactionID  uuid.UUID
	Description    string
	Date           time.Time
	AccountName    string
	AccountType    ledger.AccountType
}

// Service exposes the two search modes.
type Service interface {
	FindEntries(ctx context.Context, referenceDate time.Time, opts Options) ([]EntryMatch, ledger.Pagination, error)
	FindComplementary(ctx context.Context, amount decimal.Decimal, side ledger.Side, referenceDate time.Time, opts Options) ([]ledger.Transaction, ledger.Pagination, error)
}

type service struct {
	repo Repo
}

// New constructs the search service.
func New(repo Repo) Service { return &service{repo: repo} }

// FindEntries returns individual entries within the business-day window
// around referenceDate, joined with transaction and account context,
// filtered and paginated.
func (s *service) FindEntries(ctx context.Context, referenceDate time.Time, opts Options) ([]EntryMatch, ledger.Pagination, error) {
	from, to := busday.Window(referenceDate, opts.BusinessDays)
	txs, err := s.repo.TransactionsInRange(ctx, from, to)
	if err != nil {
		return nil, ledger.Pagination{}, err
	}

	textMatch := textMatcher(opts.Text)
	matches := make([]EntryMatch, 0)
	accountIDs := make([]uuid.UUID, 0)
	for _, t := range txs {
		if opts.ExcludeID != uuid.Nil && t.ID == opts.ExcludeID {
			continue
		}
		if !textMatch(t.Description) {
			continue
		}
		for _, e := range t.Entries {
			if opts.AccountID != nil && e.AccountID != *opts.AccountID {
				continue
			}
			if opts.Side != nil && e.Side != *opts.Side {
				continue
			}
			if opts.MinAmount != nil && e.Amount.LessThan(*opts.MinAmount) {
				continue
			}
			if opts.MaxAmount != nil && e.Amount.GreaterThan(*opts.MaxAmount) {
				continue
			}
			matches = append(matches, EntryMatch{
				Entry:         e,
				TransactionID: t.ID,
				Description:   t.Description,
				Date:          t.Date,
			})
			accountIDs = append(accountIDs, e.AccountID)
		}
	}

	sortEntryMatches(matches)
	pg := ledger.NewPagination(len(matches), opts.Page, opts.Limit)
	lo, hi := ledger.PageSlice(len(matches), opts.Page, opts.Limit)
	page := matches[lo:hi]

	// Join account names/types only for the returned page.
	ids := make([]uuid.UUID, 0, len(page))
	for _, m := range page {
		ids = append(ids, m.Entry.AccountID)
	}
	accounts, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return nil, ledger.Pagination{}, err
	}
	for i := range page {
		if acc, ok := accounts[page[i].Entry.AccountID]; ok {
			page[i].AccountName = acc.Name
			page[i].AccountType = acc.Type
		}
	}
	return page, pg, nil
}

// FindComplementary returns transactions missing an entry of the given side
// and amount (within tolerance): a search for {100, credit} finds open
// transactions holding surplus debits of 100. The scan stays inside the
// business-day window and excludes opts.ExcludeID.
func (s *service) FindComplementary(ctx context.Context, amount decimal.Decimal, side ledger.Side, referenceDate time.Time, opts Options) ([]ledger.Transaction, ledger.Pagination, error) {
	from, to := busday.Window(referenceDate, opts.BusinessDays)
	txs, err := s.repo.TransactionsInRange(ctx, from, to)
	if err != nil {
		return nil, ledger.Pagination{}, err
	}

	textMatch := textMatcher(opts.Text)
	matches := make([]ledger.Transaction, 0)
	for _, t := range txs {
		if opts.ExcludeID != uuid.Nil && t.ID == opts.ExcludeID {
			continue
		}
		if !textMatch(t.Description) {
			continue
		}
		if opts.AccountID != nil && !touchesAccount(t, *opts.AccountID) {
			continue
		}
		b := ledger.Evaluate(t.Entries)
		if !b.Imbalance.Matches(amount, side.Opposite(), "") {
			continue
		}
		matches = append(matches, t)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.Before(matches[j].Date)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	pg := ledger.NewPagination(len(matches), opts.Page, opts.Limit)
	lo, hi := ledger.PageSlice(len(matches), opts.Page, opts.Limit)
	return matches[lo:hi], pg, nil
}

func touchesAccount(t ledger.Transaction, id uuid.UUID) bool {
	for _, e := range t.Entries {
		if e.AccountID == id {
			return true
		}
	}
	return false
}

// textMatcher compiles text as a case-insensitive regexp, falling back to a
// substring match when it does not compile. Empty text matches everything.
func textMatcher(text string) func(string) bool {
	if text == "" {
		return func(string) bool { return true }
	}
	if re, err := regexp.Compile("(?i)" + text); err == nil {
		return re.MatchString
	}
	lower := strings.ToLower(text)
	return func(s string) bool { return strings.Contains(strings.ToLower(s), lower) }
}

func sortEntryMatches(matches []EntryMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.Before(matches[j].Date)
		}
		return matches[i].Entry.ID.String() < matches[j].Entry.ID.String()
	})
}
