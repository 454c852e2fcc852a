// Package config reads server settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Limits   LimitsConfig
	Sync     SyncConfig
	Schools  []SchoolSeed
}

// SchoolSeed is a participating school added at startup unless its domain is known.
type SchoolSeed struct {
	Name   string
	Domain string
}

type ServerConfig struct {
	GRPCAddr        string
	HTTPAddr        string
	TLSCert         string // empty serves plaintext gRPC
	TLSKey          string
	Dev             bool // enables gRPC reflection
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DatabaseConfig with an empty URL keeps state in memory only.
type DatabaseConfig struct {
	URL string
}

// RedisConfig with an empty URL dedupes webhooks in memory.
type RedisConfig struct {
	URL       string
	KeyPrefix string
	DedupeTTL time.Duration
}

// NATSConfig with an empty URL disables event forwarding.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	LoginWindow    time.Duration
	LoginMaxFails  int
	LoginBlockFor  time.Duration
}

// StripeConfig with an empty SecretKey disables payments.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	RefreshURL    string
	ReturnURL     string
	Currency      string
}

// LimitsConfig throttles RPCs per caller.
type LimitsConfig struct {
	RPS   float64
	Burst int
}

type SyncConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	RequestLimit int
}

// Load reads envFile into the environment when it exists, then builds the config.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return FromEnv(), nil
}

// FromEnv builds the config from the process environment.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:        getEnv("GRPC_ADDR", ":8443"),
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			TLSCert:         getEnv("TLS_CERT", ""),
			TLSKey:          getEnv("TLS_KEY", ""),
			Dev:             getBool("DEV", false),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "flour:webhook"),
			DedupeTTL: getDuration("WEBHOOK_DEDUPE_TTL", 72*time.Hour),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "flour"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
			LoginWindow:    getDuration("LOGIN_WINDOW", 15*time.Minute),
			LoginMaxFails:  getInt("LOGIN_MAX_FAILS", 5),
			LoginBlockFor:  getDuration("LOGIN_BLOCK_FOR", 15*time.Minute),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			RefreshURL:    getEnv("STRIPE_REFRESH_URL", "flour://stripe-refresh"),
			ReturnURL:     getEnv("STRIPE_RETURN_URL", "flour://stripe-return"),
			Currency:      getEnv("STRIPE_CURRENCY", "usd"),
		},
		Limits: LimitsConfig{
			RPS:   getFloat("RPC_RATE", 20),
			Burst: getInt("RPC_BURST", 40),
		},
		Sync: SyncConfig{
			QueueSize:    getInt("SYNC_QUEUE_SIZE", 1024),
			WriteTimeout: getDuration("SYNC_WRITE_TIMEOUT", 5*time.Second),
			RequestLimit: getInt("SYNC_REQUEST_LIMIT", 100),
		},
		Schools: getSchools("SCHOOLS"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getSchools parses "Name=domain;Name=domain". Malformed entries are skipped.
func getSchools(key string) []SchoolSeed {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []SchoolSeed
	for _, entry := range strings.Split(value, ";") {
		name, domain, found := strings.Cut(entry, "=")
		name, domain = strings.TrimSpace(name), strings.TrimSpace(domain)
		if !found || name == "" || domain == "" {
			continue
		}
		out = append(out, SchoolSeed{Name: name, Domain: strings.ToLower(domain)})
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
