package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tealbook/ledgerd/internal/service/rules"
)

func (s *Server) postRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rule, err := toRuleDomain(req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.rules.Create(r.Context(), rule)
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	items, err := s.rules.List(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]ruleResponse, 0, len(items))
	for _, rl := range items {
		out = append(out, toRuleResponse(rl))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rule, err := s.rules.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) putRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req ruleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rule, err := toRuleDomain(req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rule.ID = id
	updated, err := s.rules.Update(r.Context(), rule)
	if err != nil {
		s.writeValidationErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.rules.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkApplyRequest struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Query string `json:"q,omitempty"`
}

// bulkApplyRules runs the rule engine over the selected slice of the ledger,
// logging progress as the scan advances and returning the final report.
func (s *Server) bulkApplyRules(w http.ResponseWriter, r *http.Request) {
	var req bulkApplyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}
	var opts rules.BulkOptions
	opts.Query = req.Query
	if req.From != "" {
		t, err := parseDate(req.From)
		if err != nil {
			badRequest(w, "invalid from")
			return
		}
		opts.From = &t
	}
	if req.To != "" {
		t, err := parseDate(req.To)
		if err != nil {
			badRequest(w, "invalid to")
			return
		}
		opts.To = &t
	}

	log := s.log.With("component", "bulk_apply")
	sink := rules.SinkFunc(func(p rules.Progress) {
		if p.Processed%bulkLogEvery == 0 {
			log.Info("bulk apply progress",
				"processed", p.Processed,
				"matched", p.Matched,
				"modified", p.Modified)
		}
	})

	report, err := s.rules.BulkApply(r.Context(), opts, sink)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, report)
}

// bulkLogEvery throttles progress log lines during a bulk scan.
const bulkLogEvery = 25
