package http

import (
	"net/http"

	"cuentas/internal/core"
	applog "cuentas/internal/log"
)

// Expenses and incomes share these handlers; kind selects the collection.

func (s *Server) handleListTransactions(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := ParseTransactionFilter(r.URL.Query(), kind)
		if err != nil {
			writeError(w, r, applog.OpList, err)
			return
		}
		writeJSON(w, http.StatusOK, s.svc.ListTransactions(f))
	}
}

func (s *Server) handleGetTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := s.svc.GetTransaction(kind, r.PathValue("id"))
		if err != nil {
			writeError(w, r, applog.OpRead, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleCreateTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := NewRequestBodyParser(w, r)
		if err := p.Parse(); err != nil {
			badRequest(w, r, err)
			return
		}
		in, err := p.TransactionInput(kind)
		if err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}

		t, err := s.svc.CreateTransaction(r.Context(), in)
		if err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
		logTransaction(r, "Transaction created", t)
		writeJSON(w, http.StatusCreated, t)
	}
}

// handleUpdateTransaction applies the fields present in the body on top of the
// stored transaction.
func (s *Server) handleUpdateTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := NewRequestBodyParser(w, r)
		if err := p.Parse(); err != nil {
			badRequest(w, r, err)
			return
		}
		patch, err := p.TransactionPatch(kind)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}

		t, err := s.svc.UpdateTransaction(r.Context(), kind, r.PathValue("id"), patch)
		if err != nil {
			writeError(w, r, applog.OpUpdate, err)
			return
		}
		logTransaction(r, "Transaction updated", t)
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleDeleteTransaction(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.svc.DeleteTransaction(r.Context(), kind, id); err != nil {
			writeError(w, r, applog.OpDelete, err)
			return
		}
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
			applog.FieldTxID, id,
			applog.FieldKind, kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

func logTransaction(r *http.Request, msg string, t core.Transaction) {
	fields := applog.NewFields().WithTransaction(t.ID, string(t.Kind), t.Amount, string(t.Currency), t.Category, t.AccountID)
	applog.FromContext(r.Context()).InfoContext(r.Context(), msg, fields.ToSlice()...)
}
