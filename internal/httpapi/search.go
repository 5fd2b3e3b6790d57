package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/service/search"
)

type entryMatchResponse struct {
	Entry         entryResponse `json:"entry"`
	TransactionID uuid.UUID     `json:"transaction_id"`
	Description   string        `json:"description"`
	Date          time.Time     `json:"date"`
	AccountName   string        `json:"account_name"`
	AccountType   string        `json:"account_type"`
}

func (s *Server) searchEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, err := parseDate(q.Get("date"))
	if err != nil {
		badRequest(w, "date is required")
		return
	}
	opts, ok := s.searchOptions(w, r)
	if !ok {
		return
	}
	if raw := q.Get("min_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(w, "invalid min_amount")
			return
		}
		opts.MinAmount = &d
	}
	if raw := q.Get("max_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(w, "invalid max_amount")
			return
		}
		opts.MaxAmount = &d
	}
	if raw := q.Get("side"); raw != "" {
		side := ledger.Side(raw)
		if !side.Valid() {
			badRequest(w, "side must be debit or credit")
			return
		}
		opts.Side = &side
	}

	matches, pg, err := s.search.FindEntries(r.Context(), ref, opts)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]entryMatchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, entryMatchResponse{
			Entry: entryResponse{
				ID:          m.Entry.ID,
				AccountID:   m.Entry.AccountID,
				Side:        string(m.Entry.Side),
				Amount:      m.Entry.Amount,
				Unit:        m.Entry.Unit,
				Description: m.Entry.Description,
				Generated:   m.Entry.Generated,
			},
			TransactionID: m.TransactionID,
			Description:   m.Description,
			Date:          m.Date,
			AccountName:   m.AccountName,
			AccountType:   string(m.AccountType),
		})
	}
	toJSON(w, http.StatusOK, listResponse{Items: out, Pagination: pg})
}

// searchComplementary finds transactions whose imbalance would offset the
// given amount and side within the business-day window around date.
func (s *Server) searchComplementary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, err := parseDate(q.Get("date"))
	if err != nil {
		badRequest(w, "date is required")
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || amount.Sign() <= 0 {
		badRequest(w, "amount must be a positive number")
		return
	}
	side := ledger.Side(q.Get("side"))
	if !side.Valid() {
		badRequest(w, "side must be debit or credit")
		return
	}
	opts, ok := s.searchOptions(w, r)
	if !ok {
		return
	}

	matches, pg, err := s.search.FindComplementary(r.Context(), amount, side, ref, opts)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(matches))
	for _, t := range matches {
		out = append(out, toTransactionResponse(t))
	}
	toJSON(w, http.StatusOK, listResponse{Items: out, Pagination: pg})
}

// searchOptions parses the filters shared by both search modes. A false
// return means the response has already been written.
func (s *Server) searchOptions(w http.ResponseWriter, r *http.Request) (search.Options, bool) {
	q := r.URL.Query()
	var opts search.Options
	opts.Text = q.Get("q")
	opts.Page, opts.Limit = parsePage(r)
	if raw := q.Get("business_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "invalid business_days")
			return opts, false
		}
		opts.BusinessDays = n
	}
	if raw := q.Get("exclude_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid exclude_id")
			return opts, false
		}
		opts.ExcludeID = id
	}
	if raw := q.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid account_id")
			return opts, false
		}
		opts.AccountID = &id
	}
	return opts, true
}
