package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cuentas/internal/core"
)

// Source provides a fresh rate table.
type Source interface {
	FetchRates(ctx context.Context) (Rates, error)
}

// HTTPSource reads a "latest rates" JSON document such as
// {"base_code":"USD","rates":{"COP":3950.5,"EUR":0.92}}.
type HTTPSource struct {
	URL    string
	client *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type latestRatesResponse struct {
	Base     string             `json:"base"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

// FetchRates implements Source
func (s *HTTPSource) FetchRates(ctx context.Context) (Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %s", resp.Status)
	}

	var data latestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return data.toRates()
}

func (r latestRatesResponse) toRates() (Rates, error) {
	baseCode := r.BaseCode
	if baseCode == "" {
		baseCode = r.Base
	}
	base, err := core.ParseCurrency(baseCode)
	if err != nil {
		return nil, fmt.Errorf("rates base %q: %w", baseCode, err)
	}
	out := Rates{}
	for code, rate := range r.Rates {
		quote, err := core.ParseCurrency(code)
		if err != nil || quote == base || !(rate > 0) {
			continue
		}
		out[Pair{From: base, To: quote}] = rate
	}
	if len(out) == 0 {
		return nil, errors.New("rates response has no supported currencies")
	}
	return out, nil
}

// Refresher periodically reloads a Converter from a Source. Failures keep the
// previous table.
type Refresher struct {
	conv     *Converter
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

func NewRefresher(conv *Converter, source Source, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		conv:     conv,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Refresh fetches once and reports whether the table was replaced.
func (r *Refresher) Refresh(ctx context.Context) bool {
	rates, err := r.source.FetchRates(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Exchange rate refresh failed, keeping previous table", "error", err)
		return false
	}
	if !r.conv.Replace(rates) {
		r.logger.WarnContext(ctx, "Exchange rate refresh returned no usable rates", "count", len(rates))
		return false
	}
	r.logger.InfoContext(ctx, "Exchange rates refreshed",
		"pairs", len(rates),
		"pairs_list", describe(rates),
		"version", r.conv.Version())
	return true
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

func describe(rates Rates) string {
	parts := make([]string, 0, len(rates))
	for p := range rates {
		parts = append(parts, string(p.From)+"_"+string(p.To))
	}
	return strings.Join(parts, ",")
}
