package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Profile is the configuration to start the cache service.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the diagnostics server
	Addr string
	// Port is the binding port for the diagnostics server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where todayfeed stores its own data
	DSN string
	// Driver is the store driver (sqlite or memory)
	Driver string
	// Version is the current version of the service
	Version string

	// Cache tuning
	MaxCacheBytes     int // TODAYFEED_MAX_CACHE_BYTES (default: 10 MiB)
	MaxHistoryDays    int // TODAYFEED_MAX_HISTORY_DAYS (default: 7)
	MaxHistoryEntries int // TODAYFEED_MAX_HISTORY_ENTRIES (default: 50)

	// RefreshHour is the local hour at which today's content goes stale.
	RefreshHour int // TODAYFEED_REFRESH_HOUR (default: 3)

	// Timezone change detection. The immediate-refresh thresholds are
	// heuristic and deliberately configurable; see DESIGN.md.
	TimezoneCheckInterval time.Duration // TODAYFEED_TZ_CHECK_INTERVAL (default: 2h)
	TimezoneOffsetDelta   time.Duration // TODAYFEED_TZ_OFFSET_DELTA (default: 2h)
	DSTStalenessWindow    time.Duration // TODAYFEED_DST_STALENESS_WINDOW (default: 12h)

	// Sync behavior
	SyncBaseDelay         time.Duration // TODAYFEED_SYNC_BASE_DELAY (default: 30s)
	MaxSyncRetries        int           // TODAYFEED_MAX_SYNC_RETRIES (default: 5)
	MaxInteractionRetries int           // TODAYFEED_MAX_INTERACTION_RETRIES (default: 3)

	// CleanupInterval drives the periodic maintenance timer.
	CleanupInterval time.Duration // TODAYFEED_CLEANUP_INTERVAL (default: 6h)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from TODAYFEED_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("TODAYFEED_MODE", "demo")
	p.Addr = getEnvOrDefault("TODAYFEED_ADDR", "")
	p.Port = getIntEnv("TODAYFEED_PORT", 8230)
	p.Data = getEnvOrDefault("TODAYFEED_DATA", "")
	p.DSN = getEnvOrDefault("TODAYFEED_DSN", "")
	p.Driver = getEnvOrDefault("TODAYFEED_DRIVER", "memory")

	p.MaxCacheBytes = getIntEnv("TODAYFEED_MAX_CACHE_BYTES", 10*1024*1024)
	p.MaxHistoryDays = getIntEnv("TODAYFEED_MAX_HISTORY_DAYS", 7)
	p.MaxHistoryEntries = getIntEnv("TODAYFEED_MAX_HISTORY_ENTRIES", 50)
	p.RefreshHour = getIntEnv("TODAYFEED_REFRESH_HOUR", 3)

	p.TimezoneCheckInterval = getDurationEnv("TODAYFEED_TZ_CHECK_INTERVAL", 2*time.Hour)
	p.TimezoneOffsetDelta = getDurationEnv("TODAYFEED_TZ_OFFSET_DELTA", 2*time.Hour)
	p.DSTStalenessWindow = getDurationEnv("TODAYFEED_DST_STALENESS_WINDOW", 12*time.Hour)

	p.SyncBaseDelay = getDurationEnv("TODAYFEED_SYNC_BASE_DELAY", 30*time.Second)
	p.MaxSyncRetries = getIntEnv("TODAYFEED_MAX_SYNC_RETRIES", 5)
	p.MaxInteractionRetries = getIntEnv("TODAYFEED_MAX_INTERACTION_RETRIES", 3)

	p.CleanupInterval = getDurationEnv("TODAYFEED_CLEANUP_INTERVAL", 6*time.Hour)
}

// FromConfigFile overlays values from a viper-readable config file, if one
// exists at the given path. Environment variables win over file values.
func (p *Profile) FromConfigFile(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	setString("mode", &p.Mode)
	setString("addr", &p.Addr)
	setInt("port", &p.Port)
	setString("data", &p.Data)
	setString("dsn", &p.DSN)
	setString("driver", &p.Driver)
	setInt("cache.max_bytes", &p.MaxCacheBytes)
	setInt("cache.max_history_days", &p.MaxHistoryDays)
	setInt("cache.max_history_entries", &p.MaxHistoryEntries)
	setInt("refresh.hour", &p.RefreshHour)
	setDuration("timezone.check_interval", &p.TimezoneCheckInterval)
	setDuration("timezone.offset_delta", &p.TimezoneOffsetDelta)
	setDuration("timezone.dst_staleness_window", &p.DSTStalenessWindow)
	setDuration("sync.base_delay", &p.SyncBaseDelay)
	setInt("sync.max_retries", &p.MaxSyncRetries)
	setInt("sync.max_interaction_retries", &p.MaxInteractionRetries)
	setDuration("cleanup.interval", &p.CleanupInterval)
	return nil
}

// Validate normalizes the profile and fills in derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver != "sqlite" && p.Driver != "memory" {
		p.Driver = "memory"
	}
	if p.RefreshHour < 0 || p.RefreshHour > 23 {
		p.RefreshHour = 3
	}
	if p.MaxCacheBytes <= 0 {
		p.MaxCacheBytes = 10 * 1024 * 1024
	}
	if p.MaxHistoryDays <= 0 {
		p.MaxHistoryDays = 7
	}
	if p.MaxHistoryEntries <= 0 {
		p.MaxHistoryEntries = 50
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		p.DSN = p.Data + "/todayfeed_" + p.Mode + ".db"
	}
	return nil
}
