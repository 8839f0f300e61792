// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// DataDir is the directory holding the local SQLite database.
	DataDir string

	// RemoteBaseURL is the base URL of the portal backend API.
	RemoteBaseURL string
	// RemoteAPIKey authenticates pushes against the backend.
	RemoteAPIKey string
	// RemoteTimeout bounds a single push request.
	RemoteTimeout time.Duration

	// SyncEndpoint is the creation endpoint for records.
	SyncEndpoint string
	// SyncInterval is how often the background scheduler syncs while online.
	SyncInterval time.Duration
	// SyncMaxRetries is the replay budget before a mutation is dead-lettered.
	SyncMaxRetries int
	// SyncLogLimit caps the sync-log entries returned by status queries.
	SyncLogLimit int

	// StartOnline is the connectivity state assumed at startup.
	StartOnline bool
	// ProbeInterval is how often the daemon probes backend reachability.
	// Zero or negative disables the probe.
	ProbeInterval time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		DataDir: env.GetString("CONDOR_DATA_DIR", defaultDataDir()),

		RemoteBaseURL: env.GetString("CONDOR_REMOTE_BASE_URL", "http://localhost:8080"),
		RemoteAPIKey:  env.GetString("CONDOR_REMOTE_API_KEY", ""),
		RemoteTimeout: env.GetDuration("CONDOR_REMOTE_TIMEOUT_SECONDS", 30, time.Second),

		SyncEndpoint:   env.GetString("CONDOR_SYNC_ENDPOINT", "/api/reports"),
		SyncInterval:   env.GetDuration("CONDOR_SYNC_INTERVAL_MINUTES", 15, time.Minute),
		SyncMaxRetries: env.GetInt("CONDOR_SYNC_MAX_RETRIES", 5),
		SyncLogLimit:   env.GetInt("CONDOR_SYNC_LOG_LIMIT", 10),

		StartOnline:   env.GetBool("CONDOR_START_ONLINE", true),
		ProbeInterval: env.GetDuration("CONDOR_PROBE_INTERVAL_SECONDS", 30, time.Second),

		LogLevel: env.GetString("CONDOR_LOG_LEVEL", "info"),
	}
}

// defaultDataDir places the database under the user config directory,
// falling back to the working directory.
func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "condor-data"
	}
	return filepath.Join(base, "condor")
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
