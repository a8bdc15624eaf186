package profile

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars() {
	envVars := []string{
		"TODAYFEED_MODE",
		"TODAYFEED_ADDR",
		"TODAYFEED_PORT",
		"TODAYFEED_DATA",
		"TODAYFEED_DSN",
		"TODAYFEED_DRIVER",
		"TODAYFEED_MAX_CACHE_BYTES",
		"TODAYFEED_MAX_HISTORY_DAYS",
		"TODAYFEED_MAX_HISTORY_ENTRIES",
		"TODAYFEED_REFRESH_HOUR",
		"TODAYFEED_TZ_CHECK_INTERVAL",
		"TODAYFEED_TZ_OFFSET_DELTA",
		"TODAYFEED_DST_STALENESS_WINDOW",
		"TODAYFEED_SYNC_BASE_DELAY",
		"TODAYFEED_MAX_SYNC_RETRIES",
		"TODAYFEED_MAX_INTERACTION_RETRIES",
		"TODAYFEED_CLEANUP_INTERVAL",
	}
	for _, envVar := range envVars {
		os.Unsetenv(envVar)
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnvVars()

	p := &Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())

	assert.Equal(t, "demo", p.Mode)
	assert.Equal(t, "memory", p.Driver)
	assert.Equal(t, 10*1024*1024, p.MaxCacheBytes)
	assert.Equal(t, 7, p.MaxHistoryDays)
	assert.Equal(t, 50, p.MaxHistoryEntries)
	assert.Equal(t, 3, p.RefreshHour)
	assert.Equal(t, 2*time.Hour, p.TimezoneCheckInterval)
	assert.Equal(t, 2*time.Hour, p.TimezoneOffsetDelta)
	assert.Equal(t, 12*time.Hour, p.DSTStalenessWindow)
	assert.Equal(t, 30*time.Second, p.SyncBaseDelay)
	assert.Equal(t, 5, p.MaxSyncRetries)
	assert.Equal(t, 3, p.MaxInteractionRetries)
}

func TestProfileFromEnv(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("TODAYFEED_MODE", "prod")
	os.Setenv("TODAYFEED_DRIVER", "sqlite")
	os.Setenv("TODAYFEED_DATA", "/tmp")
	os.Setenv("TODAYFEED_MAX_CACHE_BYTES", "1048576")
	os.Setenv("TODAYFEED_REFRESH_HOUR", "5")
	os.Setenv("TODAYFEED_TZ_CHECK_INTERVAL", "30m")

	p := &Profile{}
	p.FromEnv()
	require.NoError(t, p.Validate())

	assert.Equal(t, "prod", p.Mode)
	assert.Equal(t, "sqlite", p.Driver)
	assert.Equal(t, 1048576, p.MaxCacheBytes)
	assert.Equal(t, 5, p.RefreshHour)
	assert.Equal(t, 30*time.Minute, p.TimezoneCheckInterval)
	assert.Equal(t, "/tmp/todayfeed_prod.db", p.DSN)
}

func TestProfileValidateNormalizes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Profile)
		check func(*testing.T, *Profile)
	}{
		{
			name:  "unknown mode falls back to demo",
			setup: func(p *Profile) { p.Mode = "staging" },
			check: func(t *testing.T, p *Profile) { assert.Equal(t, "demo", p.Mode) },
		},
		{
			name:  "unknown driver falls back to memory",
			setup: func(p *Profile) { p.Driver = "postgres" },
			check: func(t *testing.T, p *Profile) { assert.Equal(t, "memory", p.Driver) },
		},
		{
			name:  "out of range refresh hour falls back",
			setup: func(p *Profile) { p.RefreshHour = 24 },
			check: func(t *testing.T, p *Profile) { assert.Equal(t, 3, p.RefreshHour) },
		},
		{
			name:  "non-positive budget falls back",
			setup: func(p *Profile) { p.MaxCacheBytes = -1 },
			check: func(t *testing.T, p *Profile) { assert.Equal(t, 10*1024*1024, p.MaxCacheBytes) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			p := &Profile{}
			p.FromEnv()
			tt.setup(p)
			require.NoError(t, p.Validate())
			tt.check(t, p)
		})
	}
}

func TestProfileFromConfigFile(t *testing.T) {
	clearEnvVars()

	dir := t.TempDir()
	path := dir + "/todayfeed.yaml"
	content := []byte("mode: dev\nrefresh:\n  hour: 6\nsync:\n  base_delay: 10s\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	p := &Profile{}
	p.FromEnv()
	require.NoError(t, p.FromConfigFile(path))
	require.NoError(t, p.Validate())

	assert.Equal(t, "dev", p.Mode)
	assert.Equal(t, 6, p.RefreshHour)
	assert.Equal(t, 10*time.Second, p.SyncBaseDelay)
}
