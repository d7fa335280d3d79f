package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"solidify/internal/server/ledger"
	"solidify/internal/shared/models"
)

type roleMembership struct {
	Role    models.Role    `json:"role"`
	Address models.Address `json:"address"`
	Member  bool           `json:"member"`
}

// pathRole keeps unknown role names as given so that the ledger checks the
// caller before rejecting the role.
func pathRole(req *http.Request) models.Role {
	raw := chi.URLParam(req, "role")
	if role, ok := models.ParseRole(raw); ok {
		return role
	}
	return models.Role(raw)
}

func (r *Router) handleGrantRole(w http.ResponseWriter, req *http.Request) {
	args := ledger.Args{Role: pathRole(req), Account: models.ParseAddress(chi.URLParam(req, "address"))}
	r.submit(w, req, http.StatusOK, ledger.OpGrantRole, args)
}

func (r *Router) handleRevokeRole(w http.ResponseWriter, req *http.Request) {
	args := ledger.Args{Role: pathRole(req), Account: models.ParseAddress(chi.URLParam(req, "address"))}
	r.submit(w, req, http.StatusOK, ledger.OpRevokeRole, args)
}

func (r *Router) handleHasRole(w http.ResponseWriter, req *http.Request) {
	role := pathRole(req)
	addr := models.ParseAddress(chi.URLParam(req, "address"))
	member, err := r.services.Ledger.HasRole(req.Context(), role, addr)
	if err != nil {
		r.writeLedgerError(w, req, err)
		return
	}
	writeOK(w, http.StatusOK, roleMembership{Role: role, Address: addr, Member: member})
}

func (r *Router) handleRoleEvents(w http.ResponseWriter, req *http.Request) {
	r.writeEvents(w, req, 0)
}
