package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CONTACT_ADDR", "CONTACT_STORE", "CONTACT_LOCK", "CONTACT_TX_TIMEOUT",
		"DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "CONTACT_EVENTS_TOPIC",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, LockDatabase, cfg.LockMode)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "contact-events", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CONTACT_ADDR", ":8080")
	t.Setenv("CONTACT_STORE", "Postgres")
	t.Setenv("CONTACT_LOCK", "redis")
	t.Setenv("CONTACT_TX_TIMEOUT", "2s")
	t.Setenv("DATABASE_URL", "postgres://contacts@localhost/contacts")
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, LockRedis, cfg.LockMode)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.Equal(t, "postgres://contacts@localhost/contacts", cfg.Database.URL)
	assert.Equal(t, 32, cfg.Redis.PoolSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CONTACT_TX_TIMEOUT", "soon")
	t.Setenv("REDIS_LOCK_TTL", "-1s")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "many")

	cfg := FromEnv()

	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestValidate(t *testing.T) {
	redisLock := func(ttl, tx time.Duration) Server {
		return Server{
			LockMode:  LockRedis,
			TxTimeout: tx,
			Redis:     RedisConfig{URL: "redis://localhost:6379", LockTTL: ttl},
		}
	}

	tests := []struct {
		name    string
		cfg     Server
		wantErr string
	}{
		{"database lock ignores redis settings", Server{LockMode: LockDatabase}, ""},
		{"redis lock outliving the transaction", redisLock(10*time.Second, 5*time.Second), ""},
		{"redis lock without url", Server{LockMode: LockRedis, TxTimeout: time.Second, Redis: RedisConfig{LockTTL: 10 * time.Second}}, "REDIS_URL"},
		{"redis lock equal to transaction timeout", redisLock(5*time.Second, 5*time.Second), "must exceed"},
		{"redis lock shorter than transaction timeout", redisLock(2*time.Second, 5*time.Second), "must exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
