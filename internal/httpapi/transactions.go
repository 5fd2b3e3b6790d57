package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/ledger"
)

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.transactions.Create(r.Context(), toTransactionDomain(req, date))
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ledger.TransactionFilter
	if raw := q.Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(w, "invalid from")
			return
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(w, "invalid to")
			return
		}
		f.To = &t
	}
	f.Query = q.Get("q")
	f.Unbalanced = q.Get("unbalanced") == "true"
	if raw := q.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid account_id")
			return
		}
		f.AccountID = &id
	}
	page, limit := parsePage(r)

	items, pg, err := s.transactions.List(r.Context(), f, page, limit)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionResponse(t))
	}
	toJSON(w, http.StatusOK, listResponse{Items: out, Pagination: pg})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	t, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) putTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req transactionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	t := toTransactionDomain(req, date)
	t.ID = id
	res, err := s.transactions.Update(r.Context(), t)
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	if res.Removed {
		toJSON(w, http.StatusOK, removedResponse{TransactionRemoved: true, TransactionID: id})
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(res.Transaction))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.transactions.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteEntry removes one entry from a transaction; removing the last entry
// cascades to the transaction, reported as a distinct success shape.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	txID, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	entryID, err := urlID(r, "entryID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := s.recon.DeleteEntry(r.Context(), txID, entryID)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	if res.Removed {
		toJSON(w, http.StatusOK, removedResponse{TransactionRemoved: true, TransactionID: txID})
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(res.Transaction))
}
