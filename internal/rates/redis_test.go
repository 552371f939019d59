package rates

import (
	"context"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	c := &Cache{target: "EUR", ttl: time.Hour}
	if got := c.key("2023-05-17"); got != "fx_rates_EUR:2023-05-17" {
		t.Errorf("key = %s, want fx_rates_EUR:2023-05-17", got)
	}
}

func TestStoreRejectsEmptyTable(t *testing.T) {
	c := &Cache{target: "EUR", ttl: time.Hour}
	if err := c.Store(context.Background(), "2023-05-17", nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}
