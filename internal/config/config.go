package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ChainRPCURLs          []string
	ExplorerURL           string
	GameAssetID           string
	TokenContract         string
	BurnAddress           string
	SaleAddress           string
	RPCRetryMax           int
	RPCRetryBaseDelay     time.Duration
	RequestDedupeTTL      time.Duration
	PlatformEpoch         time.Time
	CacheBackend          string
	CacheDir              string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CacheMaxAge           time.Duration
	FetchTimeout          time.Duration
	MemoryMaxItems        int
	MemorySweepInterval   time.Duration
	ViewCacheTTL          time.Duration
	RefreshInterval       time.Duration
	HTTPPort              string
	AdminAPIKey           string
	SheetsSpreadsheetID   string
	GoogleCredentialsJSON string
	XLSXExportPath        string
	LogLevel              slog.Level
	LogFormat             string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		ChainRPCURLs:          envOrDefaultList("CHAIN_RPC_URLS", []string{"https://rpc.nftgame.io"}),
		ExplorerURL:           envOrDefault("EXPLORER_URL", ""),
		GameAssetID:           envOrDefaultWarn("GAME_ASSET_ID", ""),
		TokenContract:         envOrDefault("EXPLORER_TOKEN_CONTRACT", ""),
		BurnAddress:           envOrDefault("GAME_BURN_ADDRESS", ""),
		SaleAddress:           envOrDefault("SALE_ADDRESS", ""),
		RPCRetryMax:           envOrDefaultInt("RPC_RETRY_MAX", 5),
		RPCRetryBaseDelay:     envOrDefaultDuration("RPC_RETRY_BASE_DELAY", 2*time.Second),
		RequestDedupeTTL:      envOrDefaultDuration("REQUEST_DEDUPE_TTL", 5*time.Second),
		PlatformEpoch:         envOrDefaultTime("PLATFORM_EPOCH", time.Time{}),
		CacheBackend:          envOrDefaultOneOf("CACHE_BACKEND", BackendFile, BackendFile, BackendPostgres, BackendRedis),
		CacheDir:              envOrDefault("CACHE_DIR", "data/cache"),
		DatabaseURL:           envOrDefault("DATABASE_URL", ""),
		RedisAddr:             envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         envOrDefault("REDIS_PASSWORD", ""),
		RedisDB:               envOrDefaultInt("REDIS_DB", 0),
		CacheMaxAge:           envOrDefaultDuration("CACHE_MAX_AGE", 10*time.Minute),
		FetchTimeout:          envOrDefaultDuration("FETCH_TIMEOUT", 2*time.Minute),
		MemoryMaxItems:        envOrDefaultInt("MEMORY_MAX_ITEMS", 10_000),
		MemorySweepInterval:   envOrDefaultDuration("MEMORY_SWEEP_INTERVAL", 20*time.Minute),
		ViewCacheTTL:          envOrDefaultDuration("VIEW_CACHE_TTL", 15*time.Second),
		RefreshInterval:       envOrDefaultDuration("REFRESH_INTERVAL", 5*time.Minute),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefault("ADMIN_API_KEY", ""),
		SheetsSpreadsheetID:   envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		XLSXExportPath:        envOrDefault("XLSX_EXPORT_PATH", ""),
		LogLevel:              envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:             envOrDefaultOneOf("LOG_FORMAT", "text", "text", "json"),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envOrDefaultList splits a comma-separated value, dropping blanks.
func envOrDefaultList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envOrDefaultTime(key string, defaultVal time.Time) time.Time {
	if v := os.Getenv(key); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			slog.Warn("invalid RFC 3339 env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return t
	}
	return defaultVal
}

func envOrDefaultOneOf(key, defaultVal string, allowed ...string) string {
	v := strings.ToLower(envOrDefault(key, defaultVal))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	slog.Warn("unsupported env var value, using default", "key", key, "value", v, "allowed", allowed, "default", defaultVal)
	return defaultVal
}

func envOrDefaultLevel(key string, defaultVal slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err != nil {
			slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return l
	}
	return defaultVal
}
