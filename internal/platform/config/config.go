package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Lock modes. LockDatabase relies on the store's own transaction
// serialization; LockRedis adds a cross-process lock in front of it.
const (
	LockDatabase = "database"
	LockRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	Store          string
	LockMode       string
	TxTimeout      time.Duration
	RequestTimeout time.Duration
	LogLevel       string
	Database       DatabaseConfig
	SQLitePath     string
	Redis          RedisConfig
	Kafka          KafkaConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// KafkaConfig enables change events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           getEnv("CONTACT_ADDR", ":3000"),
		Store:          strings.ToLower(getEnv("CONTACT_STORE", StoreMemory)),
		LockMode:       strings.ToLower(getEnv("CONTACT_LOCK", LockDatabase)),
		TxTimeout:      getDuration("CONTACT_TX_TIMEOUT", 5*time.Second),
		RequestTimeout: getDuration("CONTACT_REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		SQLitePath: getEnv("SQLITE_PATH", "contacts.db"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getDuration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:             getEnv("CONTACT_EVENTS_TOPIC", "contact-events"),
			Partitions:        int32(getInt("CONTACT_EVENTS_PARTITIONS", 1)),
			ReplicationFactor: int16(getInt("CONTACT_EVENTS_REPLICATION", 1)),
		},
	}
}

// Validate rejects settings that break the identify lock. A Redis lock must
// outlive the transaction it guards.
func (s Server) Validate() error {
	if s.LockMode != LockRedis {
		return nil
	}
	if s.Redis.URL == "" {
		return errors.New("CONTACT_LOCK=redis requires REDIS_URL")
	}
	if s.Redis.LockTTL <= s.TxTimeout {
		return fmt.Errorf("REDIS_LOCK_TTL (%s) must exceed CONTACT_TX_TIMEOUT (%s)", s.Redis.LockTTL, s.TxTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getDuration falls back on unset, malformed or non-positive values.
func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
