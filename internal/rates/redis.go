package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"stakeflow/config"
	"stakeflow/logger"
)

const keyPrefix = "fx_rates_"

// Cache stores one Redis hash per calendar day, keyed by source currency.
// A day key existing without the requested currency means the source does
// not quote that currency, so no refetch will help until the key expires.
type Cache struct {
	client *redis.Client
	target string
	ttl    time.Duration
	log    *logger.Entry
}

// NewCache connects to Redis using the configured URL and verifies the
// connection with a ping before returning.
func NewCache(cfg *config.Config) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		target: cfg.Rates.TargetCurrency,
		ttl:    time.Duration(cfg.Rates.CacheTTLSeconds) * time.Second,
		log:    logger.GetLogger().WithComponent("rate_cache"),
	}, nil
}

func (c *Cache) key(day string) string {
	return keyPrefix + c.target + ":" + day
}

// Lookup fetches the cached rate for currency on day in a single round
// trip. dayCached reports whether the day's table exists at all, found
// whether the currency is part of it.
func (c *Cache) Lookup(ctx context.Context, day, currency string) (rate float64, dayCached, found bool, err error) {
	key := c.key(day)

	pipe := c.client.Pipeline()
	getCmd := pipe.HGet(ctx, key, currency)
	existsCmd := pipe.Exists(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, false, false, fmt.Errorf("redis lookup for %s: %w", key, err)
	}

	dayCached = existsCmd.Val() > 0

	raw, err := getCmd.Result()
	if err == redis.Nil {
		return 0, dayCached, false, nil
	}
	if err != nil {
		return 0, dayCached, false, fmt.Errorf("redis hget %s %s: %w", key, currency, err)
	}

	rate, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dayCached, false, fmt.Errorf("corrupt rate '%s' for %s on %s: %w", raw, currency, day, err)
	}

	c.log.WithFields(logger.Fields{"day": day, "currency": currency, "rate": rate}).Debug("rate served from cache")
	return rate, dayCached, true, nil
}

// Store writes the full day table and refreshes its TTL in one
// transactional pipeline.
func (c *Cache) Store(ctx context.Context, day string, rates map[string]float64) error {
	if len(rates) == 0 {
		return fmt.Errorf("refusing to cache empty rate table for %s", day)
	}

	key := c.key(day)
	values := make(map[string]interface{}, len(rates))
	for currency, rate := range rates {
		values[currency] = strconv.FormatFloat(rate, 'f', -1, 64)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store for %s: %w", key, err)
	}

	c.log.WithFields(logger.Fields{"day": day, "currencies": len(rates), "ttl": c.ttl.String()}).Info("cached day rate table")
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
