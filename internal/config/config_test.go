package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://api.open-meteo.com/v1/forecast", cfg.OpenMeteo.WeatherURL)
	assert.Equal(t, "api-key", cfg.SatSource.AuthHeader)
	assert.Equal(t, "seasonal", cfg.SatSource.ReportType)
	assert.Equal(t, 5, cfg.SatSource.MaxRegions)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, 10*time.Minute, cfg.Cache.Duration)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Len(t, cfg.Scheduler.Locations, 2)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SAT_SOURCE_ENDPOINT", "https://sat.example/v2/reports")
	t.Setenv("SAT_SOURCE_REPORT_TYPE", "multi-year")
	t.Setenv("SAT_SOURCE_YEAR_COUNT", "3")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("PREFETCH_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://sat.example/v2/reports", cfg.SatSource.Endpoint)
	assert.Equal(t, "multi-year", cfg.SatSource.ReportType)
	assert.Equal(t, 3, cfg.SatSource.YearCount)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestParseLocations(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"two valid entries", "Prague:50.0755:14.4378,London:51.5074:-0.1278", 2},
		{"malformed entry skipped", "Prague:50.0755:14.4378,broken", 1},
		{"invalid coordinates skipped", "Prague:north:east", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, parseLocations(tt.value), tt.want)
		})
	}

	locations := parseLocations("Brno:49.1951:16.6068")
	require.Len(t, locations, 1)
	assert.Equal(t, "Brno", locations[0].Name)
	assert.InDelta(t, 49.1951, locations[0].Latitude, 0.0001)
	assert.InDelta(t, 16.6068, locations[0].Longitude, 0.0001)
}
