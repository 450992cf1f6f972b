package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/mapsync"
	"github.com/fouezkebiche/memoire-projet/internal/reconcile"
	"github.com/fouezkebiche/memoire-projet/internal/scheduler"
)

// Data sources for the records behind the views.
const (
	SourceJSONRPC  = "jsonrpc"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the live map service
type Config struct {
	Server ServerConfig
	Source SourceConfig
	Sync   SyncConfig

	// Views are the map views clients can mount
	Views     []mapsync.View
	ViewsFile string
}

// ServerConfig holds HTTP and logging settings
type ServerConfig struct {
	Port           string   `validate:"required"`
	AllowedOrigins []string `validate:"min=1"`
	LogLevel       string   `validate:"oneof=trace debug info warn warning error"`
	LogFormat      string   `validate:"oneof=json text"`
}

// SourceConfig selects where records are read from
type SourceConfig struct {
	Kind string `validate:"oneof=jsonrpc sqlite postgres"`

	// JSON-RPC data service
	BaseURL   string `validate:"required_if=Kind jsonrpc"`
	SessionID string

	// SQL record store
	SQLitePath  string `validate:"required_if=Kind sqlite"`
	DatabaseURL string `validate:"required_if=Kind postgres"`

	// Optional GTFS-Realtime vehicle positions feed
	VehiclePositionsURL string `validate:"omitempty,url"`
}

// SyncConfig holds the view lifecycle and animation timings
type SyncConfig struct {
	Stabilization  time.Duration `validate:"gt=0"`
	SyncInterval   time.Duration `validate:"gt=0"`
	WatchInterval  time.Duration `validate:"gt=0"`
	Animation      time.Duration `validate:"gt=0"`
	FetchTimeout   time.Duration `validate:"gt=0"`
	SyncOnActivate bool
}

// Timing returns the scheduler timing.
func (s SyncConfig) Timing() scheduler.Timing {
	return scheduler.Timing{
		Stabilization:  s.Stabilization,
		SyncInterval:   s.SyncInterval,
		WatchInterval:  s.WatchInterval,
		SyncOnActivate: s.SyncOnActivate,
	}
}

// LoadEnvFiles loads a base .env then lets .env.local override it.
// Missing files are ignored.
func LoadEnvFiles(dir string) {
	_ = godotenv.Load(dir + "/.env")
	_ = godotenv.Overload(dir + "/.env.local")
}

// Load reads configuration from environment variables with defaults and
// validates it. Views come from VIEWS_FILE when set.
func Load() (*Config, error) {
	def := scheduler.DefaultTiming()
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8069"}),
			LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Source: SourceConfig{
			Kind:                strings.ToLower(getEnv("DATA_SOURCE", SourceSQLite)),
			BaseURL:             getEnv("DATA_SERVICE_URL", ""),
			SessionID:           getEnv("DATA_SERVICE_SESSION", ""),
			SQLitePath:          getEnv("SQLITE_DATABASE", "data/livemap.db"),
			DatabaseURL:         getEnv("DATABASE_URL", ""),
			VehiclePositionsURL: getEnv("GTFS_VEHICLE_POSITIONS_URL", ""),
		},
		Sync: SyncConfig{
			Stabilization:  getEnvDuration("STABILIZATION_DELAY", def.Stabilization),
			SyncInterval:   getEnvDuration("SYNC_INTERVAL", def.SyncInterval),
			WatchInterval:  getEnvDuration("WATCH_INTERVAL", def.WatchInterval),
			Animation:      getEnvDuration("ANIMATION_DURATION", reconcile.DefaultAnimationDuration),
			FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", mapsync.DefaultFetchTimeout),
			SyncOnActivate: getEnvBool("SYNC_ON_ACTIVATE", def.SyncOnActivate),
		},
		ViewsFile: getEnv("VIEWS_FILE", ""),
	}

	v := validator.New()
	for _, section := range []any{cfg.Server, cfg.Source, cfg.Sync} {
		if err := v.Struct(section); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if cfg.ViewsFile != "" {
		views, err := LoadViews(cfg.ViewsFile)
		if err != nil {
			return nil, err
		}
		cfg.Views = views
	} else {
		cfg.Views = mapsync.DefaultViews()
		if cfg.Source.VehiclePositionsURL != "" {
			cfg.Views = append(cfg.Views, VehiclesView())
		}
	}
	return cfg, nil
}

// NewLogger builds the process logger from the server settings.
func NewLogger(s ServerConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if s.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms", "10s") or a bare number of
// milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
