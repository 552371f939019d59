package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stakeflow/config"
	"stakeflow/logger"
)

// ratesResponse mirrors the historical endpoint's response shape:
// {"data":{"2023-05-17":{"USD":1.0834,...}}}
type ratesResponse struct {
	Data map[string]map[string]float64 `json:"data"`
}

// Provider fetches full day rate tables from the external FX source. Every
// request passes through a limiter sized to the source's request quota.
type Provider struct {
	baseURL string
	apiKey  string
	target  string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewProvider(cfg *config.Config) *Provider {
	timeout := time.Duration(cfg.Rates.RequestTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	burst := cfg.Rates.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Provider{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Rates.URL), "/"),
		apiKey:  cfg.Rates.APIKey,
		target:  cfg.Rates.TargetCurrency,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Rates.RequestsPerMinute)), burst),
		log:     logger.GetLogger().WithComponent("rates_provider"),
	}
}

// FetchDay retrieves the full rate table for the given day, expressed
// against the configured target currency. Failures of any kind wrap
// ErrSourceUnavailable so callers can classify them uniformly.
func (p *Provider) FetchDay(ctx context.Context, day string) (map[string]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	query := url.Values{}
	query.Set("apikey", p.apiKey)
	query.Set("base_currency", p.target)
	query.Set("date", day)
	endpoint := fmt.Sprintf("%s/historical?%s", p.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSourceUnavailable, err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrSourceUnavailable, resp.Status)
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	table, ok := payload.Data[day]
	if !ok || len(table) == 0 {
		return nil, fmt.Errorf("%w: no rates for %s in response", ErrSourceUnavailable, day)
	}

	p.log.WithFields(logger.Fields{
		"day":        day,
		"currencies": len(table),
		"duration":   time.Since(start).String(),
	}).Info("fetched day rate table from source")
	return table, nil
}
