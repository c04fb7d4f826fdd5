package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cuentas/internal/core"
	applog "cuentas/internal/log"
	"cuentas/internal/report"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	cur := s.currencyParam(r)

	sum, err := s.svc.MonthlySummary(r.Context(), params.Month, params.Year, cur)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type exchangeRateResponse struct {
	From     core.Currency `json:"from"`
	To       core.Currency `json:"to"`
	Rate     float64       `json:"rate"`
	Resolved bool          `json:"resolved"`
}

func (s *Server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := core.USD
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from = core.Currency(strings.ToUpper(v))
	}
	to := core.COP
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to = core.Currency(strings.ToUpper(v))
	}

	rate, ok, err := s.svc.ExchangeRate(from, to)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeRateResponse{From: from, To: to, Rate: rate, Resolved: ok})
}

func (s *Server) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "export not configured"})
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	cur := s.currencyParam(r)

	sum, txs, err := s.svc.MonthlyReport(params.Month, params.Year, cur)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.Write(&buf, sum, txs); err != nil {
		writeError(w, r, applog.OpExport, fmt.Errorf("export %d-%02d: %w", params.Year, params.Month, err))
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Excel export generated",
		applog.NewFields().
			WithOperation(applog.OpExport).
			WithPeriod(params.Year, params.Month).
			ToSlice()...)

	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(sum)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// currencyParam is the requested display currency, or the configured default.
func (s *Server) currencyParam(r *http.Request) core.Currency {
	if v := strings.TrimSpace(r.URL.Query().Get("currency")); v != "" {
		return core.Currency(strings.ToUpper(v))
	}
	return s.display
}
