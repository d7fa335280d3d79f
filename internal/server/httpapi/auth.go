package httpapi

import (
	"errors"
	"net/http"

	"solidify/internal/server/ledger"
	"solidify/internal/server/repository"
	"solidify/internal/server/service"
)

type credentialsRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body credentialsRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	acct, err := r.services.Auth.Register(req.Context(), body.Address, body.Password, getCaller(req.Context()))
	switch {
	case err == nil:
		writeOK(w, http.StatusCreated, acct)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, ledger.KindUnauthorized, err.Error())
	case errors.Is(err, service.ErrMissingFields):
		writeError(w, http.StatusBadRequest, ledger.KindInvalidArgument, err.Error())
	case errors.Is(err, repository.ErrAccountExists):
		writeError(w, http.StatusConflict, ledger.KindAlreadyExists, err.Error())
	default:
		r.log.Error().Err(err).Msg("register failed")
		writeError(w, http.StatusInternalServerError, ledger.KindInternal, "internal error")
	}
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body credentialsRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	token, err := r.services.Auth.Login(req.Context(), body.Address, body.Password)
	switch {
	case err == nil:
		writeOK(w, http.StatusOK, token)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	default:
		r.log.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, ledger.KindInternal, "internal error")
	}
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var body refreshRequest
	if !r.decodeJSON(w, req, &body) {
		return
	}
	token, err := r.services.Auth.Refresh(req.Context(), body.RefreshToken)
	switch {
	case err == nil:
		writeOK(w, http.StatusOK, token)
	case errors.Is(err, service.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	default:
		r.log.Error().Err(err).Msg("refresh failed")
		writeError(w, http.StatusInternalServerError, ledger.KindInternal, "internal error")
	}
}
