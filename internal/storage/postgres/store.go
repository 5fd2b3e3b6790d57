// Package postgres provides a pgx-backed storage implementation that
// satisfies the repository and writer interfaces used by the services.
//
// Entries live as a jsonb array on their owning transaction row, matching
// the domain model where an entry is never addressable outside its
// transaction. Rule actions are stored as a (kind, jsonb payload) pair.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/errs"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage"
)

// Store holds a pgx connection pool and implements the read/write interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// queryer is satisfied by both the pool and a pgx transaction, so the row
// mapping helpers serve plain calls and Atomic callbacks alike.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open establishes a pgx pool, runs the embedded migrations and verifies
// connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Accounts ---

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (id, name, type, unit, parent_id, active)
		values ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Name, a.Type, a.Unit, a.ParentID, a.Active)
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	tag, err := s.pool.Exec(ctx, `
		update accounts set name=$2, type=$3, unit=$4, parent_id=$5, active=$6 where id=$1
	`, a.ID, a.Name, a.Type, a.Unit, a.ParentID, a.Active)
	if err != nil {
		return ledger.Account{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	row := s.pool.QueryRow(ctx, `
		select id, name, type, unit, parent_id, active from accounts where id=$1
	`, id)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `
		select id, name, type, unit, parent_id, active from accounts order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]ledger.Account{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select id, name, type, unit, parent_id, active from accounts where id = any($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Unit, &a.ParentID, &a.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// --- Transactions ---

// entryDoc is the jsonb shape of one entry.
type entryDoc struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Side        string    `json:"side"`
	Amount      string    `json:"amount"`
	Unit        string    `json:"unit"`
	Description string    `json:"description,omitempty"`
	Generated   bool      `json:"generated,omitempty"`
}

func marshalEntries(entries []ledger.Entry) ([]byte, error) {
	docs := make([]entryDoc, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, entryDoc{
			ID:          e.ID,
			AccountID:   e.AccountID,
			Side:        string(e.Side),
			Amount:      e.Amount.String(),
			Unit:        e.Unit,
			Description: e.Description,
			Generated:   e.Generated,
		})
	}
	return json.Marshal(docs)
}

func unmarshalEntries(raw []byte) ([]ledger.Entry, error) {
	var docs []entryDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(docs))
	for _, d := range docs {
		amt, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("entry %s: bad amount %q", d.ID, d.Amount)
		}
		out = append(out, ledger.Entry{
			ID:          d.ID,
			AccountID:   d.AccountID,
			Side:        ledger.Side(d.Side),
			Amount:      amt,
			Unit:        d.Unit,
			Description: d.Description,
			Generated:   d.Generated,
		})
	}
	return out, nil
}

func saveTransaction(ctx context.Context, q queryer, t ledger.Transaction) error {
	raw, err := marshalEntries(t.Entries)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		insert into transactions (id, date, description, entries, is_balanced)
		values ($1, $2, $3, $4, $5)
		on conflict (id) do update
		set date=excluded.date, description=excluded.description,
		    entries=excluded.entries, is_balanced=excluded.is_balanced
	`, t.ID, t.Date, t.Description, raw, t.IsBalanced)
	return err
}

func deleteTransaction(ctx context.Context, q queryer, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `delete from transactions where id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func getTransaction(ctx context.Context, q queryer, id uuid.UUID) (ledger.Transaction, error) {
	row := q.QueryRow(ctx, `
		select id, date, description, entries, is_balanced from transactions where id=$1
	`, id)
	return scanTransaction(row)
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var raw []byte
	err := row.Scan(&t.ID, &t.Date, &t.Description, &raw, &t.IsBalanced)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	t.Entries, err = unmarshalEntries(raw)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (s *Store) SaveTransaction(ctx context.Context, t ledger.Transaction) error {
	return saveTransaction(ctx, s.pool, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return deleteTransaction(ctx, s.pool, id)
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return getTransaction(ctx, s.pool, id)
}

func (s *Store) TransactionByEntry(ctx context.Context, entryID uuid.UUID) (ledger.Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		select id, date, description, entries, is_balanced from transactions
		where entries @> jsonb_build_array(jsonb_build_object('id', $1::text))
	`, entryID.String())
	return scanTransaction(row)
}

func (s *Store) TransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		select id, date, description, entries, is_balanced from transactions
		where date >= $1 and date <= $2
		order by date, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// FindTransactions filters, orders by (date, id) and paginates, returning
// the total match count alongside the page.
func (s *Store) FindTransactions(ctx context.Context, f ledger.TransactionFilter, page, limit int) ([]ledger.Transaction, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx, `select count(*) from transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = ledger.DefaultPageLimit
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		select id, date, description, entries, is_balanced from transactions
		%s order by date, id limit $%d offset $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildFilter(f ledger.TransactionFilter) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date <= $%d", *f.To)
	}
	if f.Unbalanced {
		clauses = append(clauses, "is_balanced = false")
	}
	if f.ExcludeID != uuid.Nil {
		add("id <> $%d", f.ExcludeID)
	}
	if f.AccountID != nil {
		add("entries @> jsonb_build_array(jsonb_build_object('account_id', $%d::text))", f.AccountID.String())
	}
	if f.Query != "" {
		if _, err := regexp.Compile("(?i)" + f.Query); err == nil {
			add("description ~* $%d", f.Query)
		} else {
			add("description ilike $%d", "%"+escapeLike(f.Query)+"%")
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func collectTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Rules ---

type ruleDestinationDoc struct {
	AccountID uuid.UUID `json:"account_id"`
	Ratio     string    `json:"ratio,omitempty"`
	Amount    string    `json:"amount,omitempty"`
}

type ruleActionDoc struct {
	Replacement  string               `json:"replacement,omitempty"`
	Destinations []ruleDestinationDoc `json:"destinations,omitempty"`
	Fixed        bool                 `json:"fixed,omitempty"`
	Pattern      string               `json:"pattern,omitempty"`
	AccountID    *uuid.UUID           `json:"account_id,omitempty"`
	MaxDateDiff  int                  `json:"max_date_diff,omitempty"`
}

func marshalAction(a ledger.Action) (kind string, raw []byte, err error) {
	var doc ruleActionDoc
	switch v := a.(type) {
	case ledger.RenameAction:
		doc.Replacement = v.Replacement
	case ledger.ComplementAction:
		doc.Fixed = v.Fixed
		for _, d := range v.Destinations {
			doc.Destinations = append(doc.Destinations, ruleDestinationDoc{
				AccountID: d.AccountID,
				Ratio:     d.Ratio.String(),
				Amount:    d.Amount.String(),
			})
		}
	case ledger.MergeAction:
		doc.Pattern = v.Pattern
		doc.AccountID = v.AccountID
		doc.MaxDateDiff = v.MaxDateDiff
	default:
		return "", nil, fmt.Errorf("unknown rule action %T", a)
	}
	raw, err = json.Marshal(doc)
	return string(a.Kind()), raw, err
}

func unmarshalAction(kind string, raw []byte) (ledger.Action, error) {
	var doc ruleActionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	switch ledger.RuleKind(kind) {
	case ledger.RuleKindRename:
		return ledger.RenameAction{Replacement: doc.Replacement}, nil
	case ledger.RuleKindComplement:
		dests := make([]ledger.Destination, 0, len(doc.Destinations))
		for _, d := range doc.Destinations {
			ratio, err := decimal.NewFromString(d.Ratio)
			if err != nil {
				return nil, fmt.Errorf("rule destination ratio %q: %w", d.Ratio, err)
			}
			amount, err := decimal.NewFromString(d.Amount)
			if err != nil {
				return nil, fmt.Errorf("rule destination amount %q: %w", d.Amount, err)
			}
			dests = append(dests, ledger.Destination{AccountID: d.AccountID, Ratio: ratio, Amount: amount})
		}
		return ledger.ComplementAction{Destinations: dests, Fixed: doc.Fixed}, nil
	case ledger.RuleKindMerge:
		return ledger.MergeAction{Pattern: doc.Pattern, AccountID: doc.AccountID, MaxDateDiff: doc.MaxDateDiff}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", kind)
}

func (s *Store) CreateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	kind, raw, err := marshalAction(r.Action)
	if err != nil {
		return ledger.Rule{}, err
	}
	ids, _ := json.Marshal(r.AccountIDs)
	_, err = s.pool.Exec(ctx, `
		insert into rules (id, name, pattern, account_ids, side_filter, auto_apply, created_at, kind, action)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Name, r.Pattern, ids, r.SideFilter, r.AutoApply, r.CreatedAt, kind, raw)
	if err != nil {
		return ledger.Rule{}, err
	}
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	kind, raw, err := marshalAction(r.Action)
	if err != nil {
		return ledger.Rule{}, err
	}
	ids, _ := json.Marshal(r.AccountIDs)
	tag, err := s.pool.Exec(ctx, `
		update rules set name=$2, pattern=$3, account_ids=$4, side_filter=$5, auto_apply=$6, kind=$7, action=$8
		where id=$1
	`, r.ID, r.Name, r.Pattern, ids, r.SideFilter, r.AutoApply, kind, raw)
	if err != nil {
		return ledger.Rule{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.Rule{}, errs.ErrNotFound
	}
	return r, nil
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `delete from rules where id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (ledger.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		select id, name, pattern, account_ids, side_filter, auto_apply, created_at, kind, action
		from rules where id=$1
	`, id)
	return scanRule(row)
}

// ListRules returns rules in creation order, the order auto-apply evaluates
// them in.
func (s *Store) ListRules(ctx context.Context) ([]ledger.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		select id, name, pattern, account_ids, side_filter, auto_apply, created_at, kind, action
		from rules order by created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (ledger.Rule, error) {
	var r ledger.Rule
	var ids, raw []byte
	var kind string
	err := row.Scan(&r.ID, &r.Name, &r.Pattern, &ids, &r.SideFilter, &r.AutoApply, &r.CreatedAt, &kind, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Rule{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Rule{}, err
	}
	if err := json.Unmarshal(ids, &r.AccountIDs); err != nil {
		return ledger.Rule{}, err
	}
	r.Action, err = unmarshalAction(kind, raw)
	if err != nil {
		return ledger.Rule{}, err
	}
	return r, nil
}

// --- Unit of work ---

// txStore binds the transaction operations to a pgx transaction.
type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func (t *txStore) SaveTransaction(ctx context.Context, tr ledger.Transaction) error {
	return saveTransaction(ctx, t.tx, tr)
}

func (t *txStore) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return deleteTransaction(ctx, t.tx, id)
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
