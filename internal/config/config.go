// Package config loads application configuration from environment
// variables. Required variables are enforced by must(); missing values
// halt the process at startup rather than failing a command later.
// Optional values fall back to a default via getOr/intOr/durationOr.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig names one MySQL endpoint (§6 "two database endpoints": a
// write-store pool and a separate read-store pool, each built from its
// own DBConfig). store.Open takes this instead of five positional
// strings so the DSN assembly and the pool tuning it carries stay in one
// place shared by both pools.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// PoolConfig tunes a *sql.DB pool. Both the write-store and read-store
// pools share one PoolConfig since neither has a distinct load profile
// this service can reason about yet.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// RedisConfig names the optional cache backend. Every field has a
// workable default so a deployment with no redis at all still starts —
// cache.NewClient degrades to a nil client on connection failure and
// every Cache method then behaves as a permanent miss (§5).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// Config holds every runtime configuration value this service needs,
// grouped by the collaborator it configures (§6 "Configuration").
type Config struct {
	Env      string
	Port     string
	LogLevel string

	WriteDB DBConfig
	ReadDB  DBConfig
	DBPool  PoolConfig

	Redis RedisConfig

	AMQPURL           string
	AMQPDeadLetterURL string
	BusPartitions     int

	JWTSecret string
	JWTIssuer string

	SweepInterval time.Duration
	RelayInterval time.Duration
}

// Load reads configuration from the environment, first loading a local
// .env file when present (teacher dependency `github.com/joho/godotenv`;
// a missing .env is not an error — it only ever exists outside prod).
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env present but unreadable: %v", err)
	}

	return Config{
		Env:      getOr("APP_ENV", "dev"),
		Port:     getOr("APP_PORT", "8080"),
		LogLevel: getOr("LOG_LEVEL", "info"),

		WriteDB: DBConfig{
			User: must("WRITE_DB_USER"),
			Pass: os.Getenv("WRITE_DB_PASS"),
			Host: must("WRITE_DB_HOST"),
			Port: getOr("WRITE_DB_PORT", "3306"),
			Name: must("WRITE_DB_NAME"),
		},
		ReadDB: DBConfig{
			User: must("READ_DB_USER"),
			Pass: os.Getenv("READ_DB_PASS"),
			Host: must("READ_DB_HOST"),
			Port: getOr("READ_DB_PORT", "3306"),
			Name: must("READ_DB_NAME"),
		},
		DBPool: PoolConfig{
			MaxOpenConns:    intOr("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intOr("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: durationOr("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			PingTimeout:     durationOr("DB_PING_TIMEOUT", 10*time.Second),
		},

		Redis: loadRedisConfig(),

		AMQPURL:           must("AMQP_URL"),
		AMQPDeadLetterURL: getOr("AMQP_DEAD_LETTER_URL", ""),
		BusPartitions:     intOr("BUS_PARTITIONS", 3),

		JWTSecret: must("JWT_SECRET"),
		JWTIssuer: getOr("JWT_ISSUER", "ticketing-core"),

		SweepInterval: durationOr("SWEEP_INTERVAL", 30*time.Second),
		RelayInterval: durationOr("OUTBOX_RELAY_INTERVAL", 500*time.Millisecond),
	}
}

// loadRedisConfig mirrors the write/read DB vars' REDIS_HOST+REDIS_PORT
// shape, falling back to a single REDIS_ADDR when set, then to a local
// default — redis is the one dependency this service can run without.
func loadRedisConfig() RedisConfig {
	addr := getOr("REDIS_ADDR", "")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnabled := false
	if v := os.Getenv("REDIS_TLS"); v == "1" || v == "true" || v == "TRUE" {
		tlsEnabled = true
	}
	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intOr("REDIS_DB", 0),
		TLS:      tlsEnabled,
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("config: missing required env var: %s", key)
	}
	return v
}

// getOr returns the environment variable's value, or fallback if unset.
func getOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// intOr is like getOr but parses an int, falling back (and logging a
// warning, not fataling) on an unparseable value.
func intOr(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("config: invalid int for %s: %q, using default %d", key, s, fallback)
		return fallback
	}
	return n
}

// durationOr is like intOr for time.Duration-valued env vars (Go duration
// strings, e.g. "30s").
func durationOr(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("config: invalid duration for %s: %q, using default %s", key, s, fallback)
		return fallback
	}
	return d
}
