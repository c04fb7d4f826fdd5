// Package http serves the ledger as a JSON API.
//
// This file turns query strings and request bodies into core inputs. Bodies
// may be JSON objects or form-encoded; both are read through the same parser.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cuentas/internal/core"
	"cuentas/internal/ledger"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads month and year from query, defaulting each missing
// value to the one of now. Values that are present must be integers and the
// year must be positive; the month range is checked by the summary engine.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := parseYear(v)
		if err != nil {
			return MonthParams{}, err
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}
		}
		params.Month = m
	}

	return params, nil
}

// ParseTransactionFilter builds a list filter for kind. Month and year are
// optional here; category may also be given as "type" for incomes.
func ParseTransactionFilter(query url.Values, kind core.Kind) (ledger.Filter, error) {
	f := ledger.Filter{
		Kind:      kind,
		Category:  strings.TrimSpace(query.Get("category")),
		AccountID: strings.TrimSpace(query.Get("accountId")),
	}
	if f.Category == "" && kind == core.Income {
		f.Category = strings.TrimSpace(query.Get("type"))
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := parseYear(v)
		if err != nil {
			return ledger.Filter{}, err
		}
		f.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Filter{}, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}
		}
		if err := core.ValidateMonth(m); err != nil {
			return ledger.Filter{}, &core.ValidationError{Field: "month", Err: err}
		}
		f.Month = m
	}
	return f, nil
}

// parseYear accepts integer years from 1 on; a zero year would match every year.
func parseYear(v string) (int, error) {
	y, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: "year", Err: errors.New("must be an integer")}
	}
	if err := core.ValidateYear(y); err != nil {
		return 0, &core.ValidationError{Field: "year", Err: err}
	}
	return y, nil
}

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as trimmed strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body. Bodies starting with '{' are JSON; anything else is
// treated as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Has reports whether key was sent, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// AccountInput reads a new account. A missing balance means zero.
func (p *RequestBodyParser) AccountInput() (core.AccountInput, error) {
	in := core.AccountInput{
		Name:        p.Get("name"),
		Currency:    core.Currency(strings.ToUpper(p.Get("currency"))),
		Description: p.Get("description"),
	}
	if p.Has("balance") {
		b, err := parseBalance(p.Get("balance"))
		if err != nil {
			return core.AccountInput{}, err
		}
		in.Balance = b
	}
	return in, nil
}

// AccountPatch reads the fields present in the body.
func (p *RequestBodyParser) AccountPatch() (core.AccountPatch, error) {
	var patch core.AccountPatch
	if p.Has("name") {
		v := p.Get("name")
		patch.Name = &v
	}
	if p.Has("balance") {
		b, err := parseBalance(p.Get("balance"))
		if err != nil {
			return core.AccountPatch{}, err
		}
		patch.Balance = &b
	}
	if p.Has("currency") {
		c := core.Currency(strings.ToUpper(p.Get("currency")))
		patch.Currency = &c
	}
	if p.Has("description") {
		v := p.Get("description")
		patch.Description = &v
	}
	return patch, nil
}

// TransactionInput reads a new transaction of kind.
func (p *RequestBodyParser) TransactionInput(kind core.Kind) (core.TransactionInput, error) {
	patch, err := p.TransactionPatch(kind)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return patch.Apply(core.TransactionInput{Kind: kind}), nil
}

// TransactionPatch reads the fields present in the body. For incomes "type"
// stands in for a missing "category".
func (p *RequestBodyParser) TransactionPatch(kind core.Kind) (core.TransactionPatch, error) {
	var patch core.TransactionPatch
	if p.Has("amount") {
		amount, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return core.TransactionPatch{}, &core.ValidationError{Field: "amount", Err: err}
		}
		patch.Amount = &amount
	}
	if p.Has("currency") {
		c := core.Currency(strings.ToUpper(p.Get("currency")))
		patch.Currency = &c
	}
	if p.Has("date") {
		d, err := core.ParseDate(p.Get("date"))
		if err != nil {
			return core.TransactionPatch{}, &core.ValidationError{Field: "date", Err: err}
		}
		patch.Date = &d
	}
	switch {
	case p.Has("category"):
		v := p.Get("category")
		patch.Category = &v
	case kind == core.Income && p.Has("type"):
		v := p.Get("type")
		patch.Category = &v
	}
	if p.Has("description") {
		v := p.Get("description")
		patch.Description = &v
	}
	if p.Has("accountId") {
		v := p.Get("accountId")
		patch.AccountID = &v
	}
	return patch, nil
}

// parseBalance accepts any finite number, including negative and zero.
func parseBalance(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &core.ValidationError{Field: "balance", Err: errors.New("must be a number")}
	}
	return v, nil
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
