package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile    string        // Optional: path to SQLite database file (default: ./keymgr.db)
	DefaultLifetime time.Duration // Optional: key lifetime when a request omits one (default: 90 days)
	ScanInterval    time.Duration // Optional: expiry scanner cadence (default: 5m)
	WarningWindow   time.Duration // Optional: how far ahead of expiry warnings start (default: 7 days)

	SecretBackend string // Optional: secret store backend (memory, vault) (default: memory)
	VaultAddress  string // Required for vault backend
	VaultToken    string // Required for vault backend
	VaultMount    string // Optional: KV v2 mount (default: secret)
	VaultPrefix   string // Optional: path prefix under the mount (default: exchange-keys)

	WebhookURL string // Optional: notification webhook; events go to the log when unset

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:    getEnvOrDefault("KEYMGR_DATABASE_FILE", "keymgr.db"),
		DefaultLifetime: getEnvDurationOrDefault("KEYMGR_DEFAULT_LIFETIME", 90*24*time.Hour),
		ScanInterval:    getEnvDurationOrDefault("KEYMGR_SCAN_INTERVAL", 5*time.Minute),
		WarningWindow:   getEnvDurationOrDefault("KEYMGR_WARNING_WINDOW", 7*24*time.Hour),

		SecretBackend: getEnvOrDefault("KEYMGR_SECRET_BACKEND", "memory"),
		VaultAddress:  os.Getenv("VAULT_ADDR"),
		VaultToken:    os.Getenv("VAULT_TOKEN"),
		VaultMount:    getEnvOrDefault("KEYMGR_VAULT_MOUNT", "secret"),
		VaultPrefix:   getEnvOrDefault("KEYMGR_VAULT_PREFIX", "exchange-keys"),

		WebhookURL: os.Getenv("KEYMGR_WEBHOOK_URL"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values count as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
