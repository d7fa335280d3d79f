package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"solidify/internal/server/ledger"
	"solidify/internal/shared/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, models.Envelope{Success: true, Message: "ok", Data: data})
}

func writeError(w http.ResponseWriter, status int, kind ledger.ErrorKind, msg string) {
	writeJSON(w, status, models.Envelope{Message: msg, Error: string(kind)})
}

var kindStatus = map[ledger.ErrorKind]int{
	ledger.KindInvalidArgument: http.StatusBadRequest,
	ledger.KindUnauthorized:    http.StatusForbidden,
	ledger.KindNotFound:        http.StatusNotFound,
	ledger.KindNotIssued:       http.StatusNotFound,
	ledger.KindAlreadyExists:   http.StatusConflict,
	ledger.KindAlreadyErased:   http.StatusConflict,
	ledger.KindErased:          http.StatusConflict,
	ledger.KindAlreadyIssued:   http.StatusConflict,
}

// writeLedgerError maps a ledger failure to its status. Internal errors are
// logged and their detail withheld from the client.
func (r *Router) writeLedgerError(w http.ResponseWriter, req *http.Request, err error) {
	kind := ledger.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		r.log.Error().Err(err).Str("request_id", requestIDFrom(req.Context())).Msg("ledger operation failed")
		writeError(w, http.StatusInternalServerError, ledger.KindInternal, "internal error")
		return
	}
	writeError(w, status, kind, err.Error())
}

// decodeJSON reads a JSON body into dst, answering the request itself and
// returning false on failure.
func (r *Router) decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	if r.maxRequestBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxRequestBytes)
	}
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, ledger.KindInvalidArgument, "request entity too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, ledger.KindInvalidArgument, "empty body")
		default:
			writeError(w, http.StatusBadRequest, ledger.KindInvalidArgument, "invalid json")
		}
		return false
	}
	return true
}
