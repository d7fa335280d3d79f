package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"solidify/internal/server/ledger"
	"solidify/internal/shared/models"
)

type createRecordRequest struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type updateRecordRequest struct {
	Content string `json:"content"`
}

type issueNFTRequest struct {
	Holder string `json:"holder"`
}

// recordID parses the {id} path parameter. Malformed ids are answered with
// 400; zero and negative ids pass through so the ledger reports them.
func recordID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ledger.KindInvalidArgument, "record id must be an integer")
		return 0, false
	}
	return id, true
}

func (r *Router) submit(w http.ResponseWriter, req *http.Request, status int, op ledger.Operation, args ledger.Args) {
	rcpt, err := r.services.Ledger.Submit(req.Context(), op, args, getCaller(req.Context()))
	if err != nil {
		r.writeLedgerError(w, req, err)
		return
	}
	writeOK(w, status, rcpt)
}

func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) {
	var body createRecordRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	r.submit(w, req, http.StatusCreated, ledger.OpCreate, ledger.Args{ID: body.ID, Content: body.Content})
}

func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	var body updateRecordRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	r.submit(w, req, http.StatusOK, ledger.OpUpdate, ledger.Args{ID: id, Content: body.Content})
}

func (r *Router) handleErase(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	r.submit(w, req, http.StatusOK, ledger.OpErase, ledger.Args{ID: id})
}

func (r *Router) handleIssueNFT(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	var body issueNFTRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	r.submit(w, req, http.StatusCreated, ledger.OpIssueNFT, ledger.Args{ID: id, Holder: models.ParseAddress(body.Holder)})
}

func (r *Router) handleRetrieve(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	rec, err := r.services.Ledger.Query(req.Context(), id)
	if err != nil {
		r.writeLedgerError(w, req, err)
		return
	}
	writeOK(w, http.StatusOK, rec)
}

func (r *Router) handleBinding(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	b, err := r.services.Ledger.Binding(req.Context(), id)
	if err != nil {
		r.writeLedgerError(w, req, err)
		return
	}
	writeOK(w, http.StatusOK, b)
}

func (r *Router) handleRecordEvents(w http.ResponseWriter, req *http.Request) {
	id, ok := recordID(w, req)
	if !ok {
		return
	}
	if id == 0 {
		writeError(w, http.StatusNotFound, ledger.KindNotFound, "record not found: record 0")
		return
	}
	r.writeEvents(w, req, id)
}

func (r *Router) writeEvents(w http.ResponseWriter, req *http.Request, id int64) {
	events, err := r.services.Ledger.Events(req.Context(), id)
	if err != nil {
		r.writeLedgerError(w, req, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeOK(w, http.StatusOK, events)
}
