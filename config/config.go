package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime settings of a single gateway node. Values come
// from the environment; zero values fall back to defaults suitable for
// local development.
type Config struct {
	NodeID     string
	ListenAddr string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NatsURL enables the cross-instance relay when non-empty.
	NatsURL string

	// AllowedOrigins gates browser upgrades when non-empty; empty
	// accepts any origin.
	AllowedOrigins []string

	// JWTSecret enables token verification on the setup handshake when
	// non-empty. Empty keeps the handshake identity client-asserted.
	JWTSecret string

	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int

	PresenceTTL time.Duration
}

func Load() Config {
	return Config{
		NodeID:         envStr("NODE_ID", "gw-1"),
		ListenAddr:     envStr("LISTEN_ADDR", ":8080"),
		MongoURI:       envStr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        envStr("MONGO_DB", "workchat"),
		RedisAddr:      envStr("REDIS_ADDR", ""),
		RedisPassword:  envStr("REDIS_PASSWORD", ""),
		RedisDB:        envInt("REDIS_DB", 0),
		NatsURL:        envStr("NATS_URL", ""),
		AllowedOrigins: envList("ALLOWED_ORIGINS"),
		JWTSecret:      envStr("JWT_SECRET", ""),
		SendQueueSize:  envInt("SEND_QUEUE_SIZE", 256),
		FanoutWorkers:  envInt("FANOUT_WORKERS", 4),
		FanoutQueue:    envInt("FANOUT_QUEUE", 1024),
		PresenceTTL:    envDur("PRESENCE_TTL", 2*time.Minute),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
