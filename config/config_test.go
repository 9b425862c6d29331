package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FREE_LISTING_QUOTA", "")
	t.Setenv("DB_DRIVER", "")

	cfg := Load()

	assert.Equal(t, 5, cfg.Business.FreeListingQuota)
	assert.Equal(t, int64(10000), cfg.Business.DefaultListingFee)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Business.TxTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FREE_LISTING_QUOTA", "3")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TX_TIMEOUT_SECONDS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 3, cfg.Business.FreeListingQuota)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Business.TxTimeout)
}
