package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

const appDir = "fintrack"

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// Memory backend seed files
	MemoryDataDir string

	// Persisted user settings (row defaults, debug categories)
	SettingsFile string

	LogLevel string

	// Lookups
	DefaultCurrency     string
	GlobalSubCategories bool

	// Backups
	BackupDir         string
	BackupMinInterval time.Duration
	BackupKeep        int
	BackupOnStart     bool
}

func Load() *Config {
	dbPath := getEnv("SQLITE_DB_PATH", DefaultDBPath())
	cfg := &Config{
		DataBackend:   getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:  dbPath,
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", "data"),
		SettingsFile:  getEnv("SETTINGS_FILE", DefaultSettingsPath()),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DefaultCurrency:     strings.ToUpper(getEnv("DEFAULT_CURRENCY", "EUR")),
		GlobalSubCategories: getEnvBool("GLOBAL_SUB_CATEGORIES", false),

		BackupDir:         getEnv("BACKUP_DIR", filepath.Join(filepath.Dir(dbPath), "backups")),
		BackupMinInterval: getEnvDuration("BACKUP_MIN_INTERVAL", 24*time.Hour),
		BackupKeep:        getEnvInt("BACKUP_KEEP", 7),
		BackupOnStart:     getEnvBool("BACKUP_ON_START", true),
	}

	return cfg
}

// DefaultDBPath is the database location under the XDG data home.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, appDir, "fintrack.db")
}

// DefaultSettingsPath is the settings file location under the XDG config home.
func DefaultSettingsPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "settings.yaml")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(c.DefaultCurrency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a 3-letter ISO 4217 code", c.DefaultCurrency))
	}

	if c.BackupKeep < 1 {
		errors = append(errors, fmt.Sprintf("invalid backup keep %d: must be at least 1", c.BackupKeep))
	}
	if c.BackupMinInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid backup interval %v: must not be negative", c.BackupMinInterval))
	}
	if c.DataBackend == "sqlite" && c.BackupDir == "" {
		errors = append(errors, "backup directory cannot be empty when using sqlite backend")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
