package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stakeflow/config"
)

func providerConfig(url string) *config.Config {
	return &config.Config{
		Rates: config.RatesConfig{
			URL:               url,
			APIKey:            "test-key",
			TargetCurrency:    "EUR",
			RequestTimeoutMs:  2000,
			RequestsPerMinute: 600,
			Burst:             1,
			CacheTTLSeconds:   3600,
		},
	}
}

func TestFetchDay(t *testing.T) {
	var gotPath, gotKey, gotBase, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apikey")
		gotBase = r.URL.Query().Get("base_currency")
		gotDate = r.URL.Query().Get("date")
		fmt.Fprint(w, `{"data":{"2023-05-17":{"USD":1.0834,"GBP":0.8672}}}`)
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	table, err := p.FetchDay(context.Background(), "2023-05-17")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotPath != "/historical" {
		t.Errorf("path = %s, want /historical", gotPath)
	}
	if gotKey != "test-key" || gotBase != "EUR" || gotDate != "2023-05-17" {
		t.Errorf("query = key:%s base:%s date:%s", gotKey, gotBase, gotDate)
	}
	if len(table) != 2 {
		t.Fatalf("table size = %d, want 2", len(table))
	}
	if table["USD"] != 1.0834 {
		t.Errorf("USD rate = %v, want 1.0834", table["USD"])
	}
}

func TestFetchDayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	if _, err := p.FetchDay(context.Background(), "2023-05-17"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchDayMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>try again later</html>`)
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	if _, err := p.FetchDay(context.Background(), "2023-05-17"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchDayMissingDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"2023-05-16":{"USD":1.08}}}`)
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	if _, err := p.FetchDay(context.Background(), "2023-05-17"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchDayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	if _, err := p.FetchDay(context.Background(), "2023-05-17"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}
