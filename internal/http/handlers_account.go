package http

import (
	"net/http"

	applog "cuentas/internal/log"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListAccounts())
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAccount(r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		badRequest(w, r, err)
		return
	}
	in, err := p.AccountInput()
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	a, err := s.svc.CreateAccount(r.Context(), in)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Account created",
		applog.FieldAccountID, a.ID,
		applog.FieldCurrency, a.Currency)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		badRequest(w, r, err)
		return
	}
	patch, err := p.AccountPatch()
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}

	a, err := s.svc.UpdateAccount(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Account deleted", applog.FieldAccountID, id)
	w.WriteHeader(http.StatusNoContent)
}
