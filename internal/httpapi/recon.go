package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type mergeRequest struct {
	SourceID uuid.UUID `json:"source_id"`
	TargetID uuid.UUID `json:"target_id"`
}

type moveRequest struct {
	EntryID       uuid.UUID `json:"entry_id"`
	DestinationID uuid.UUID `json:"destination_id"`
}

type splitRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	EntryIndices  []int     `json:"entry_indices"`
}

type moveResponse struct {
	Source      any                 `json:"source"`
	Destination transactionResponse `json:"destination"`
}

type splitResponse struct {
	Original any                 `json:"original"`
	Created  transactionResponse `json:"created"`
}

func (s *Server) mergeTransactions(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	merged, err := s.recon.Merge(r.Context(), req.SourceID, req.TargetID)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(merged))
}

func (s *Server) moveEntry(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	res, err := s.recon.MoveEntry(r.Context(), req.EntryID, req.DestinationID)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	resp := moveResponse{Destination: toTransactionResponse(res.Destination)}
	if res.Source.Removed {
		resp.Source = removedResponse{TransactionRemoved: true, TransactionID: res.Source.Transaction.ID}
	} else {
		resp.Source = toTransactionResponse(res.Source.Transaction)
	}
	toJSON(w, http.StatusOK, resp)
}

func (s *Server) splitTransaction(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	res, err := s.recon.Split(r.Context(), req.TransactionID, req.EntryIndices)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	resp := splitResponse{Created: toTransactionResponse(res.Created)}
	if res.Original.Removed {
		resp.Original = removedResponse{TransactionRemoved: true, TransactionID: req.TransactionID}
	} else {
		resp.Original = toTransactionResponse(res.Original.Transaction)
	}
	toJSON(w, http.StatusOK, resp)
}
