// Package config loads the layer's knobs from the environment and wires
// the logger and cache backend choices.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"fedifetch/internal/cache"
)

// Config carries every tunable of the fetch layer. Construct once at
// process start and inject; nothing here is read lazily at runtime.
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	UserAgent      string

	ActorCacheTTL    time.Duration
	ActorCacheSize   int
	InstanceCacheTTL time.Duration
	ConditionalTTL   time.Duration
	BatchWindow      int

	BlocklistEnabled bool
	BlockedDomains   []string

	// RedisURL switches the cache backend from in-process memory to Redis.
	RedisURL string
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		RequestTimeout:   10 * time.Second,
		MaxBodyBytes:     10 << 20,
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		UserAgent:        "fedifetch/1.0",
		ActorCacheTTL:    time.Hour,
		ActorCacheSize:   1000,
		InstanceCacheTTL: 30 * time.Minute,
		ConditionalTTL:   15 * time.Minute,
		BatchWindow:      5,
	}
}

// FromEnv overlays FEDI_* environment variables onto the defaults.
// Durations accept Go duration strings ("10s", "1m").
func FromEnv() Config {
	cfg := Default()

	cfg.RequestTimeout = envDuration("FEDI_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxBodyBytes = envInt64("FEDI_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.MaxAttempts = envInt("FEDI_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.BaseDelay = envDuration("FEDI_BASE_DELAY", cfg.BaseDelay)
	cfg.MaxDelay = envDuration("FEDI_MAX_DELAY", cfg.MaxDelay)
	if ua := os.Getenv("FEDI_USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}

	cfg.ActorCacheTTL = envDuration("FEDI_ACTOR_TTL", cfg.ActorCacheTTL)
	cfg.ActorCacheSize = envInt("FEDI_ACTOR_CACHE_SIZE", cfg.ActorCacheSize)
	cfg.InstanceCacheTTL = envDuration("FEDI_INSTANCE_TTL", cfg.InstanceCacheTTL)
	cfg.ConditionalTTL = envDuration("FEDI_CONDITIONAL_TTL", cfg.ConditionalTTL)
	cfg.BatchWindow = envInt("FEDI_BATCH_WINDOW", cfg.BatchWindow)

	if list := os.Getenv("FEDI_BLOCKED_DOMAINS"); list != "" {
		for _, domain := range strings.Split(list, ",") {
			domain = strings.TrimSpace(domain)
			if domain != "" {
				cfg.BlockedDomains = append(cfg.BlockedDomains, domain)
			}
		}
		cfg.BlocklistEnabled = true
	}
	if v, ok := os.LookupEnv("FEDI_BLOCKLIST_ENABLED"); ok {
		cfg.BlocklistEnabled = v == "1" || strings.EqualFold(v, "true")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	return cfg
}

// NewBackend picks the cache backend: Redis when REDIS_URL is set,
// otherwise a bounded in-process cache.
func (c Config) NewBackend(prefix string) (cache.Backend, error) {
	if c.RedisURL != "" {
		return cache.NewRedis(c.RedisURL, prefix)
	}
	return cache.NewMemory(c.ActorCacheSize), nil
}

// InitLogger installs a JSON slog handler at the level named by LOG_LEVEL
// (debug/info/warn/error, default info).
func InitLogger() {
	var level slog.Level
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "var", key, "value", v)
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid integer", "var", key, "value", v)
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid integer", "var", key, "value", v)
		return def
	}
	return n
}
