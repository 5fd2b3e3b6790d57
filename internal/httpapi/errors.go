package httpapi

import (
	"errors"
	"net/http"

	"github.com/tealbook/ledgerd/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter) {
	writeErr(w, http.StatusNotFound, "not_found", "not_found")
}

// errCode names the violated invariant so clients can branch without
// parsing messages.
func errCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrOpposingEntries):
		return "opposing_entries"
	case errors.Is(err, errs.ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, errs.ErrSameSideImbalance):
		return "same_side_imbalance"
	case errors.Is(err, errs.ErrInvalidMergeResult):
		return "invalid_merge_result"
	case errors.Is(err, errs.ErrBadRatioSum):
		return "bad_ratio_sum"
	case errors.Is(err, errs.ErrDateDiffRange):
		return "date_diff_range"
	case errors.Is(err, errs.ErrAccountHasChildren):
		return "account_has_children"
	case errors.Is(err, errs.ErrAccountCycle):
		return "account_cycle"
	}
	return "validation_error"
}

// writeServiceErr maps service-layer errors onto the HTTP taxonomy:
// not-found 404, state conflicts 409, invariant violations 422, caller
// mistakes 400, everything else an opaque 500.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), errCode(err))
	case errors.Is(err, errs.ErrUnprocessable):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), errCode(err))
	case errors.Is(err, errs.ErrInvalid):
		badRequest(w, err.Error())
	default:
		s.log.Error("internal error", "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}

// writeValidationErr is for create/update payload validation, where plain
// errors mean a fixable request and typed sentinels keep their own status.
func (s *Server) writeValidationErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrConflict) ||
		errors.Is(err, errs.ErrUnprocessable) ||
		errors.Is(err, errs.ErrInvalid) {
		s.writeServiceErr(w, r, err)
		return
	}
	writeErr(w, http.StatusBadRequest, err.Error(), "validation_error")
}
