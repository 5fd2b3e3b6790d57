package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tealbook/ledgerd/internal/ledger"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	created, err := s.accounts.Create(r.Context(), ledger.Account{
		Name:     req.Name,
		Type:     ledger.AccountType(req.Type),
		Unit:     req.Unit,
		ParentID: req.ParentID,
	})
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	a, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req accountRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	updated, err := s.accounts.Update(r.Context(), ledger.Account{
		ID:       id,
		Name:     req.Name,
		Type:     ledger.AccountType(req.Type),
		Unit:     req.Unit,
		ParentID: req.ParentID,
	})
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
