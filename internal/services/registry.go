package services

import (
	"github.com/skyfield-labs/weather-report-agent/internal/config"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

// DefaultRegistryEntries materializes the provider registry from external
// configuration. Entries are constructed once at process start; the factory
// owns them afterwards.
func DefaultRegistryEntries(cfg *config.Config) map[string]*client.RegistryEntry {
	satSecrets := map[string]string{}
	if cfg.SatSource.APIKey != "" {
		satSecrets["api_key"] = cfg.SatSource.APIKey
	}

	return map[string]*client.RegistryEntry{
		"open-meteo": {
			New: client.NewOpenMeteoClient,
			Config: map[string]any{
				"weather_url": cfg.OpenMeteo.WeatherURL,
			},
			Secrets: map[string]string{},
		},
		"sat-source": {
			New: client.NewSatSourceClient,
			Config: map[string]any{
				"endpoint":       cfg.SatSource.Endpoint,
				"auth_header":    cfg.SatSource.AuthHeader,
				"max_region_ids": cfg.SatSource.MaxRegions,
				"report_type":    cfg.SatSource.ReportType,
				"year_count":     cfg.SatSource.YearCount,
				"callback_url":   cfg.SatSource.CallbackURL,
			},
			Secrets: satSecrets,
		},
	}
}
