package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/ledger"
)

// Accounts

type accountRequest struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Unit     string     `json:"unit,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type accountResponse struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Unit     string     `json:"unit"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Active   bool       `json:"active"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Name:     a.Name,
		Type:     string(a.Type),
		Unit:     a.Unit,
		ParentID: a.ParentID,
		Active:   a.Active,
	}
}

// Transactions

type entryRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Side      string    `json:"side"`
	// Amount accepts both JSON numbers and numeric strings.
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type transactionRequest struct {
	Date        string         `json:"date"`
	Description string         `json:"description"`
	Entries     []entryRequest `json:"entries"`
}

type entryResponse struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Side        string          `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Unit        string          `json:"unit"`
	Description string          `json:"description,omitempty"`
	Generated   bool            `json:"generated,omitempty"`
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Entries     []entryResponse `json:"entries"`
	IsBalanced  bool            `json:"is_balanced"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	entries := make([]entryResponse, 0, len(t.Entries))
	for _, e := range t.Entries {
		entries = append(entries, entryResponse{
			ID:          e.ID,
			AccountID:   e.AccountID,
			Side:        string(e.Side),
			Amount:      e.Amount,
			Unit:        e.Unit,
			Description: e.Description,
			Generated:   e.Generated,
		})
	}
	return transactionResponse{
		ID:          t.ID,
		Date:        t.Date,
		Description: t.Description,
		Entries:     entries,
		IsBalanced:  t.IsBalanced,
	}
}

func toTransactionDomain(req transactionRequest, date time.Time) ledger.Transaction {
	entries := make([]ledger.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, ledger.Entry{
			AccountID:   e.AccountID,
			Side:        ledger.Side(e.Side),
			Amount:      e.Amount,
			Description: e.Description,
		})
	}
	return ledger.Transaction{Date: date, Description: req.Description, Entries: entries}
}

// listResponse is the shape of every list-returning operation.
type listResponse struct {
	Items      any               `json:"items"`
	Pagination ledger.Pagination `json:"pagination"`
}

// removedResponse tells the caller a cascade deleted the transaction.
type removedResponse struct {
	TransactionRemoved bool      `json:"transaction_removed"`
	TransactionID      uuid.UUID `json:"transaction_id"`
}

// Rules

type ruleDestination struct {
	AccountID uuid.UUID        `json:"account_id"`
	Ratio     *decimal.Decimal `json:"ratio,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

type ruleAction struct {
	Kind         string            `json:"kind"`
	Replacement  string            `json:"replacement,omitempty"`
	Destinations []ruleDestination `json:"destinations,omitempty"`
	Fixed        bool              `json:"fixed,omitempty"`
	Pattern      string            `json:"pattern,omitempty"`
	AccountID    *uuid.UUID        `json:"account_id,omitempty"`
	MaxDateDiff  int               `json:"max_date_diff,omitempty"`
}

type ruleRequest struct {
	Name       string      `json:"name"`
	Pattern    string      `json:"pattern"`
	AccountIDs []uuid.UUID `json:"account_ids,omitempty"`
	SideFilter string      `json:"side_filter"`
	AutoApply  bool        `json:"auto_apply"`
	Action     ruleAction  `json:"action"`
}

type ruleResponse struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Pattern    string      `json:"pattern"`
	AccountIDs []uuid.UUID `json:"account_ids,omitempty"`
	SideFilter string      `json:"side_filter"`
	AutoApply  bool        `json:"auto_apply"`
	CreatedAt  time.Time   `json:"created_at"`
	Action     ruleAction  `json:"action"`
}

func toRuleDomain(req ruleRequest) (ledger.Rule, error) {
	r := ledger.Rule{
		Name:       req.Name,
		Pattern:    req.Pattern,
		AccountIDs: req.AccountIDs,
		SideFilter: ledger.SideFilter(req.SideFilter),
		AutoApply:  req.AutoApply,
	}
	switch ledger.RuleKind(req.Action.Kind) {
	case ledger.RuleKindRename:
		r.Action = ledger.RenameAction{Replacement: req.Action.Replacement}
	case ledger.RuleKindComplement:
		dests := make([]ledger.Destination, 0, len(req.Action.Destinations))
		for _, d := range req.Action.Destinations {
			dest := ledger.Destination{AccountID: d.AccountID}
			if d.Ratio != nil {
				dest.Ratio = *d.Ratio
			}
			if d.Amount != nil {
				dest.Amount = *d.Amount
			}
			dests = append(dests, dest)
		}
		r.Action = ledger.ComplementAction{Destinations: dests, Fixed: req.Action.Fixed}
	case ledger.RuleKindMerge:
		r.Action = ledger.MergeAction{
			Pattern:     req.Action.Pattern,
			AccountID:   req.Action.AccountID,
			MaxDateDiff: req.Action.MaxDateDiff,
		}
	default:
		return ledger.Rule{}, errors.New("action kind must be rename, complement or merge")
	}
	return r, nil
}

func toRuleResponse(r ledger.Rule) ruleResponse {
	resp := ruleResponse{
		ID:         r.ID,
		Name:       r.Name,
		Pattern:    r.Pattern,
		AccountIDs: r.AccountIDs,
		SideFilter: string(r.SideFilter),
		AutoApply:  r.AutoApply,
		CreatedAt:  r.CreatedAt,
		Action:     ruleAction{Kind: string(r.Action.Kind())},
	}
	switch a := r.Action.(type) {
	case ledger.RenameAction:
		resp.Action.Replacement = a.Replacement
	case ledger.ComplementAction:
		resp.Action.Fixed = a.Fixed
		for _, d := range a.Destinations {
			d := d
			dest := ruleDestination{AccountID: d.AccountID}
			if a.Fixed {
				dest.Amount = &d.Amount
			} else {
				dest.Ratio = &d.Ratio
			}
			resp.Action.Destinations = append(resp.Action.Destinations, dest)
		}
	case ledger.MergeAction:
		resp.Action.Pattern = a.Pattern
		resp.Action.AccountID = a.AccountID
		resp.Action.MaxDateDiff = a.MaxDateDiff
	}
	return resp
}

// --- request parsing helpers ---

// urlID parses the {id}-style chi route parameter named name.
func urlID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}

// parseDate accepts RFC3339 timestamps and bare dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New("invalid date")
}

// parsePage reads page/limit query params with defaults.
func parsePage(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = ledger.DefaultPageLimit
	}
	return page, limit
}
