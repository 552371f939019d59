package rates

import (
	"context"
	"fmt"

	"stakeflow/internal/metrics"
	"stakeflow/logger"
)

// fetcher pulls a full day table from the rate source.
type fetcher interface {
	FetchDay(ctx context.Context, day string) (map[string]float64, error)
}

// store caches day tables.
type store interface {
	Lookup(ctx context.Context, day, currency string) (rate float64, dayCached, found bool, err error)
	Store(ctx context.Context, day string, rates map[string]float64) error
}

// Service resolves conversion rates cache first, falling back to the
// external source only for days not cached yet. Concurrent misses for the
// same day may fetch redundantly; the last write wins and both writers
// store identical tables.
type Service struct {
	cache  store
	source fetcher
	log    *logger.Entry
}

func NewService(cache store, source fetcher) *Service {
	return &Service{
		cache:  cache,
		source: source,
		log:    logger.GetLogger().WithComponent("rates"),
	}
}

// Rate returns the conversion rate from currency to the target unit for
// the given day. It returns ErrUnsupportedCurrency when the source does
// not quote the currency and ErrSourceUnavailable when no table could be
// fetched; any other error is an infrastructure failure.
func (s *Service) Rate(ctx context.Context, currency, day string) (float64, error) {
	rate, dayCached, found, err := s.cache.Lookup(ctx, day, currency)
	if err != nil {
		return 0, fmt.Errorf("rate cache lookup: %w", err)
	}
	if found {
		metrics.IncrementRateLookup("hit")
		return rate, nil
	}
	if dayCached {
		metrics.IncrementRateLookup("unsupported")
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	metrics.IncrementRateLookup("miss")
	s.log.WithFields(logger.Fields{"day": day, "currency": currency}).Info("day table not cached, fetching from source")

	table, err := s.source.FetchDay(ctx, day)
	if err != nil {
		metrics.IncrementRateLookup("source_error")
		return 0, err
	}

	if err := s.cache.Store(ctx, day, table); err != nil {
		return 0, fmt.Errorf("rate cache store: %w", err)
	}

	rate, ok := table[currency]
	if !ok {
		metrics.IncrementRateLookup("unsupported")
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	return rate, nil
}
