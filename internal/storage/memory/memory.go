// Package memory provides a simple in-memory implementation used for
// development and tests. It keeps code paths easy to follow while allowing a
// real database to be plugged in behind the same interfaces.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// Store is an in-memory implementation of every repository and writer
// interface in the service layer. A single RWMutex guards the maps; Atomic
// holds the write lock for the whole callback and rolls the transaction maps
// back on error, so a pair-wise update is never half-visible.
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]ledger.Account
	transactions map[uuid.UUID]ledger.Transaction
	rules        map[uuid.UUID]ledger.Rule
	// ruleOrder preserves creation order for deterministic rule evaluation.
	ruleOrder []uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]ledger.Account),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		rules:        make(map[uuid.UUID]ledger.Rule),
	}
}

// Seed helpers for local dev/tests.
func (s *Store) SeedAccount(a ledger.Account) {
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) SeedTransaction(t ledger.Transaction) {
	s.mu.Lock()
	s.transactions[t.ID] = cloneTransaction(t)
	s.mu.Unlock()
}

func (s *Store) SeedRule(r ledger.Rule) {
	s.mu.Lock()
	s.rules[r.ID] = r
	s.ruleOrder = append(s.ruleOrder, r.ID)
	s.mu.Unlock()
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.transactions = map[uuid.UUID]ledger.Transaction{}
	s.rules = map[uuid.UUID]ledger.Rule{}
	s.ruleOrder = nil
	s.mu.Unlock()
}

// Ready reports store readiness; the in-memory store always is.
func (s *Store) Ready(_ context.Context) error { return nil }

// --- Accounts ---

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AccountsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// --- Transactions ---

func (s *Store) SaveTransaction(_ context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (s *Store) TransactionByEntry(_ context.Context, entryID uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.EntryByID(entryID) >= 0 {
			return cloneTransaction(t), nil
		}
	}
	return ledger.Transaction{}, errs.ErrNotFound
}

func (s *Store) TransactionsInRange(_ context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Transaction, 0)
	for _, t := range s.transactions {
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sortTransactions(out)
	return out, nil
}

// FindTransactions filters, orders by (date, id) and paginates, returning
// the total match count alongside the page.
func (s *Store) FindTransactions(_ context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := queryMatcher(f.Query)
	out := make([]ledger.Transaction, 0)
	for _, t := range s.transactions {
		if f.ExcludeID != uuid.Nil && t.ID == f.ExcludeID {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Date.After(*f.To) {
			continue
		}
		if f.Unbalanced && t.IsBalanced {
			continue
		}
		if !match(t.Description) {
			continue
		}
		if f.AccountID != nil {
			found := false
			for _, e := range t.Entries {
				if e.AccountID == *f.AccountID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, cloneTransaction(t))
	}
	sortTransactions(out)
	total := len(out)
	lo, hi := ledger.PageSlice(total, page, limit)
	return out[lo:hi], total, nil
}

// --- Rules ---

func (s *Store) CreateRule(_ context.Context, r ledger.Rule) (ledger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
	s.ruleOrder = append(s.ruleOrder, r.ID)
	return r, nil
}

func (s *Store) UpdateRule(_ context.Context, r ledger.Rule) (ledger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; !ok {
		return ledger.Rule{}, errs.ErrNotFound
	}
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.rules, id)
	for i, rid := range s.ruleOrder {
		if rid == id {
			s.ruleOrder = append(s.ruleOrder[:i], s.ruleOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) GetRule(_ context.Context, id uuid.UUID) (ledger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return ledger.Rule{}, errs.ErrNotFound
	}
	return r, nil
}

// ListRules returns rules in creation order.
func (s *Store) ListRules(_ context.Context) ([]ledger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Rule, 0, len(s.ruleOrder))
	for _, id := range s.ruleOrder {
		if r, ok := s.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- Unit of work ---

// Atomic runs fn under the write lock against an unlocked view of the store
// and restores the transaction map from a snapshot when fn fails. Readers
// never observe a half-applied pair.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[uuid.UUID]ledger.Transaction, len(s.transactions))
	for id, t := range s.transactions {
		snapshot[id] = cloneTransaction(t)
	}
	if err := fn(ctx, &txView{s: s}); err != nil {
		s.transactions = snapshot
		return err
	}
	return nil
}

// txView issues writes without locking; Atomic already holds the lock.
type txView struct {
	s *Store
}

func (v *txView) GetTransaction(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	t, ok := v.s.transactions[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (v *txView) SaveTransaction(_ context.Context, t ledger.Transaction) error {
	v.s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (v *txView) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if _, ok := v.s.transactions[id]; !ok {
		return errs.ErrNotFound
	}
	delete(v.s.transactions, id)
	return nil
}

// --- helpers ---

func cloneTransaction(t ledger.Transaction) ledger.Transaction {
	entries := make([]ledger.Entry, len(t.Entries))
	copy(entries, t.Entries)
	t.Entries = entries
	return t
}

func sortTransactions(out []ledger.Transaction) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

// queryMatcher mirrors the filter contract: case-insensitive regex with a
// substring fallback, empty matches all.
func queryMatcher(q string) func(string) bool {
	if q == "" {
		return func(string) bool { return true }
	}
	if re, err := regexp.Compile("(?i)" + q); err == nil {
		return re.MatchString
	}
	lower := strings.ToLower(q)
	return func(s string) bool { return strings.Contains(strings.ToLower(s), lower) }
}
