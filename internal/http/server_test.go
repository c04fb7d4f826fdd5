package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cuentas/internal/cache"
	"cuentas/internal/core"
	"cuentas/internal/currency"
	"cuentas/internal/ledger"
	applog "cuentas/internal/log"
	"cuentas/internal/middleware/ratelimit"
	"cuentas/internal/report"
	"cuentas/internal/services"
	"cuentas/internal/summary"
)

type testServerOpts struct {
	ready     func(context.Context) error
	perMinute int
}

func newTestServer(t *testing.T, o testServerOpts) *Server {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	conv := currency.NewConverter(nil)
	store := ledger.New(conv, ledger.WithLogger(discard))
	svc := services.NewLedgerService(store, summary.NewEngine(store, conv), conv,
		cache.NewLRUCache[core.MonthlyFinancialSummary](16, time.Minute), nil, discard)

	perMinute := o.perMinute
	if perMinute == 0 {
		perMinute = 1000
	}
	return NewServer(":0", Options{
		Service:         svc,
		Exporter:        report.NewExcelExporter(conv),
		Limiter:         ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: perMinute}),
		Logger:          applog.New(applog.Config{Output: io.Discard}),
		DisplayCurrency: core.COP,
		Ready:           o.ready,
		Now:             func() time.Time { return time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC) },
	})
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status=%d want %d body=%s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	for _, path := range []string{"/healthz", "/readyz"} {
		mustStatus(t, do(t, srv, http.MethodGet, path, ""), http.StatusOK)
	}

	down := newTestServer(t, testServerOpts{ready: func(context.Context) error { return errors.New("db gone") }})
	mustStatus(t, do(t, down, http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable)
}

func TestAccountLifecycle(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rr := do(t, srv, http.MethodPost, "/accounts", `{"name":"Main","balance":1000000,"currency":"cop"}`)
	mustStatus(t, rr, http.StatusCreated)
	acc := decode[core.Account](t, rr)
	if acc.ID == "" || acc.Currency != core.COP || acc.Balance != 1000000 {
		t.Fatalf("unexpected account: %+v", acc)
	}

	rr = do(t, srv, http.MethodPut, "/accounts/"+acc.ID, `{"name":"Main COP"}`)
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.Account](t, rr); got.Name != "Main COP" || got.Balance != 1000000 {
		t.Fatalf("patch changed more than the name: %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/accounts", "")
	mustStatus(t, rr, http.StatusOK)
	if list := decode[[]core.Account](t, rr); len(list) != 1 {
		t.Fatalf("expected 1 account, got %d", len(list))
	}

	rr = do(t, srv, http.MethodPost, "/expenses",
		`{"amount":"50","currency":"USD","date":"2024-05-03","category":"Food","accountId":"`+acc.ID+`"}`)
	mustStatus(t, rr, http.StatusCreated)
	exp := decode[core.Transaction](t, rr)

	rr = do(t, srv, http.MethodGet, "/accounts/"+acc.ID, "")
	mustStatus(t, rr, http.StatusOK)
	if got := decode[core.Account](t, rr); got.Balance != 800000 {
		t.Fatalf("balance = %v, want 800000", got.Balance)
	}

	rr = do(t, srv, http.MethodDelete, "/accounts/"+acc.ID, "")
	mustStatus(t, rr, http.StatusConflict)

	mustStatus(t, do(t, srv, http.MethodDelete, "/expenses/"+exp.ID, ""), http.StatusNoContent)
	mustStatus(t, do(t, srv, http.MethodDelete, "/accounts/"+acc.ID, ""), http.StatusNoContent)
	mustStatus(t, do(t, srv, http.MethodGet, "/accounts/"+acc.ID, ""), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodDelete, "/accounts/"+acc.ID, ""), http.StatusNotFound)
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{"bad amount", `{"amount":"abc","currency":"USD","date":"2024-05-03","category":"Food"}`, 422, "amount"},
		{"zero amount", `{"amount":0,"currency":"USD","date":"2024-05-03","category":"Food"}`, 422, "amount"},
		{"missing category", `{"amount":5,"currency":"USD","date":"2024-05-03"}`, 422, "category"},
		{"bad currency", `{"amount":5,"currency":"GBP","date":"2024-05-03","category":"Food"}`, 422, "currency"},
		{"bad date", `{"amount":5,"currency":"USD","date":"03/05/2024","category":"Food"}`, 422, "date"},
		{"missing date", `{"amount":5,"currency":"USD","category":"Food"}`, 422, "date"},
		{"malformed json", `{"amount":`, 400, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/expenses", tt.body)
			mustStatus(t, rr, tt.wantCode)
			if tt.wantField != "" {
				if resp := decode[errorResponse](t, rr); resp.Field != tt.wantField {
					t.Fatalf("field = %q, want %q", resp.Field, tt.wantField)
				}
			}
		})
	}

	rr := do(t, srv, http.MethodGet, "/expenses", "")
	if list := decode[[]core.Transaction](t, rr); len(list) != 0 {
		t.Fatalf("rejected requests must not create transactions, got %d", len(list))
	}
}

func TestFormEncodedExpense(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	rr := do(t, srv, http.MethodPost, "/expenses", "amount=12%2C50&currency=eur&date=2024-05-01&category=Books")
	mustStatus(t, rr, http.StatusCreated)
	tx := decode[core.Transaction](t, rr)
	if tx.Amount != 12.5 || tx.Currency != core.EUR || tx.Kind != core.Expense || tx.AccountID != "" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestUpdateExpenseKeepsAbsentFields(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	rr := do(t, srv, http.MethodPost, "/expenses",
		`{"amount":10,"currency":"USD","date":"2024-05-03","category":"Food","description":"lunch"}`)
	mustStatus(t, rr, http.StatusCreated)
	tx := decode[core.Transaction](t, rr)

	rr = do(t, srv, http.MethodPut, "/expenses/"+tx.ID, `{"amount":25}`)
	mustStatus(t, rr, http.StatusOK)
	got := decode[core.Transaction](t, rr)
	if got.Amount != 25 || got.Category != "Food" || got.Description != "lunch" || got.Date.String() != "2024-05-03" {
		t.Fatalf("unexpected update result: %+v", got)
	}

	mustStatus(t, do(t, srv, http.MethodPut, "/expenses/"+tx.ID, `{"amount":-1}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, srv, http.MethodPut, "/expenses/missing", `{"amount":1}`), http.StatusNotFound)
}

func TestIncomesAreSeparateFromExpenses(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	rr := do(t, srv, http.MethodPost, "/incomes",
		`{"amount":400000,"currency":"COP","date":"2024-05-01","type":"Salary"}`)
	mustStatus(t, rr, http.StatusCreated)
	inc := decode[core.Transaction](t, rr)
	if inc.Kind != core.Income || inc.Category != "Salary" {
		t.Fatalf("unexpected income: %+v", inc)
	}

	mustStatus(t, do(t, srv, http.MethodGet, "/expenses/"+inc.ID, ""), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodDelete, "/expenses/"+inc.ID, ""), http.StatusNotFound)
	mustStatus(t, do(t, srv, http.MethodGet, "/incomes/"+inc.ID, ""), http.StatusOK)

	tests := []struct {
		target string
		want   int
	}{
		{"/incomes?type=Salary", 1},
		{"/incomes?category=Salary&month=5&year=2024", 1},
		{"/incomes?type=Bonus", 0},
		{"/incomes?month=6", 0},
		{"/expenses", 0},
	}
	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, tt.target, "")
		mustStatus(t, rr, http.StatusOK)
		if list := decode[[]core.Transaction](t, rr); len(list) != tt.want {
			t.Errorf("%s: got %d transactions, want %d", tt.target, len(list), tt.want)
		}
	}

	mustStatus(t, do(t, srv, http.MethodGet, "/incomes?month=13", ""), http.StatusUnprocessableEntity)
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	for _, body := range []string{
		`{"amount":15,"currency":"USD","date":"2024-05-03","category":"Food"}`,
		`{"amount":60000,"currency":"COP","date":"2024-05-03","category":"Food"}`,
		`{"amount":20000,"currency":"COP","date":"2024-05-20","category":"Transport"}`,
		`{"amount":99,"currency":"COP","date":"2024-06-01","category":"Food"}`,
	} {
		mustStatus(t, do(t, srv, http.MethodPost, "/expenses", body), http.StatusCreated)
	}

	rr := do(t, srv, http.MethodGet, "/summary?month=5&year=2024&currency=COP", "")
	mustStatus(t, rr, http.StatusOK)
	sum := decode[core.MonthlyFinancialSummary](t, rr)
	if sum.TotalExpenses != 140000 || sum.ExpenseCount != 3 {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if sum.ExpensesByCategory["Food"] != 120000 || sum.ExpensesByDay[20] != 20000 {
		t.Fatalf("unexpected breakdown: %+v", sum)
	}

	// Defaults: current month of the server clock and the display currency.
	rr = do(t, srv, http.MethodGet, "/summary", "")
	mustStatus(t, rr, http.StatusOK)
	if sum := decode[core.MonthlyFinancialSummary](t, rr); sum.Month != 5 || sum.Year != 2024 || sum.Currency != core.COP {
		t.Fatalf("unexpected defaults: %+v", sum)
	}

	for _, target := range []string{
		"/summary?month=13&year=2024",
		"/summary?month=abc&year=2024",
		"/summary?month=5&year=2024&currency=GBP",
		"/summary?month=5&year=0",
		"/export/excel?month=5&year=0",
	} {
		mustStatus(t, do(t, srv, http.MethodGet, target, ""), http.StatusUnprocessableEntity)
	}
}

func TestExchangeRateEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rr := do(t, srv, http.MethodGet, "/exchange-rate", "")
	mustStatus(t, rr, http.StatusOK)
	got := decode[exchangeRateResponse](t, rr)
	if got.From != core.USD || got.To != core.COP || got.Rate != 4000 || !got.Resolved {
		t.Fatalf("unexpected default rate: %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/exchange-rate?from=cop&to=usd", "")
	mustStatus(t, rr, http.StatusOK)
	if got := decode[exchangeRateResponse](t, rr); got.Rate != 1.0/4000 {
		t.Fatalf("inverse rate = %v", got.Rate)
	}

	mustStatus(t, do(t, srv, http.MethodGet, "/exchange-rate?from=ABC", ""), http.StatusUnprocessableEntity)
}

func TestExportExcel(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})
	mustStatus(t, do(t, srv, http.MethodPost, "/expenses",
		`{"amount":10,"currency":"USD","date":"2024-05-03","category":"Food"}`), http.StatusCreated)

	rr := do(t, srv, http.MethodGet, "/export/excel?month=5&year=2024&currency=USD", "")
	mustStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != report.ContentTypeXLSX {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "cuentas-2024-05-USD.xlsx") {
		t.Fatalf("content disposition = %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "PK") {
		t.Fatal("body is not a zip archive")
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv := newTestServer(t, testServerOpts{perMinute: 1})
	body := `{"name":"A","currency":"USD"}`

	mustStatus(t, do(t, srv, http.MethodPost, "/accounts", body), http.StatusCreated)
	mustStatus(t, do(t, srv, http.MethodPost, "/accounts", body), http.StatusTooManyRequests)
	mustStatus(t, do(t, srv, http.MethodGet, "/accounts", ""), http.StatusOK)
}

func TestResponseHeaders(t *testing.T) {
	srv := newTestServer(t, testServerOpts{})

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing generated request id")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q, want caller's", got)
	}

	mustStatus(t, do(t, srv, http.MethodPatch, "/accounts", "{}"), http.StatusMethodNotAllowed)
}
