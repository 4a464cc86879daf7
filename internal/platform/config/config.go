package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"agentledger/pkg/domain"
)

// Server captures everything cmd/server needs to wire the registry. Values
// come from the environment so main stays lean.
type Server struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string

	// Owner is the protocol owner principal: always authorized to resolve
	// jobs, manage verifiers, pause the protocol, and withdraw fees.
	Owner domain.Principal

	// VerificationFee is the fee (in accounting units) required to submit a
	// job record. Adjustable at runtime by the owner.
	VerificationFee uint64

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	RateLimit RateLimitConfig
}

// PostgresConfig holds the optional postgres backing store settings. An empty
// URL selects the in-memory stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig holds the optional redis settings used by the rate limiter.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the optional audit stream settings. Empty brokers disable
// the Kafka sink; audit events still land in the audit store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig bounds mutating requests per principal per window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:            envOr("AGENTLEDGER_ADDR", ":8080"),
		AdminToken:      os.Getenv("AGENTLEDGER_ADMIN_TOKEN"),
		JWTSigningKey:   envOr("AGENTLEDGER_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Owner:           domain.Principal(envOr("AGENTLEDGER_OWNER", "protocol-owner")),
		VerificationFee: envUint("AGENTLEDGER_VERIFICATION_FEE", 1),
		Postgres: PostgresConfig{
			URL: os.Getenv("AGENTLEDGER_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("AGENTLEDGER_REDIS_URL"),
			PoolSize:     int(envUint("AGENTLEDGER_REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(envUint("AGENTLEDGER_REDIS_MIN_IDLE", 2)),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("AGENTLEDGER_KAFKA_BROKERS")),
			Topic:   envOr("AGENTLEDGER_KAFKA_TOPIC", "agentledger.audit"),
		},
		RateLimit: RateLimitConfig{
			Limit:  int(envUint("AGENTLEDGER_RATE_LIMIT", 60)),
			Window: time.Minute,
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
