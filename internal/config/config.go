package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
)

type Config struct {
	Server struct {
		Port          string
		ReadTimeout   time.Duration
		WriteTimeout  time.Duration
		LogLevel      string
		PublicBaseURL string
	}

	OpenMeteo struct {
		WeatherURL string
	}

	SatSource struct {
		Endpoint    string
		APIKey      string
		AuthHeader  string
		MaxRegions  int
		ReportType  string
		YearCount   int
		CallbackURL string
	}

	Retry struct {
		MaxRetries     int
		Delay          time.Duration
		AttemptTimeout time.Duration
	}

	CircuitBreaker struct {
		Timeout time.Duration
	}

	Cache struct {
		Duration time.Duration
		MaxSize  int
	}

	Scheduler struct {
		Enabled    bool
		CronSpec   string
		WindowDays int
		Locations  []models.Location
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Server.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	cfg.OpenMeteo.WeatherURL = getEnv("OPEN_METEO_WEATHER_URL", "https://api.open-meteo.com/v1/forecast")

	cfg.SatSource.Endpoint = getEnv("SAT_SOURCE_ENDPOINT", "https://api.satsource.example/v1/reports")
	cfg.SatSource.APIKey = getEnv("SAT_SOURCE_API_KEY", "")
	cfg.SatSource.AuthHeader = getEnv("SAT_SOURCE_AUTH_HEADER", "api-key")
	cfg.SatSource.MaxRegions = parseInt(getEnv("SAT_SOURCE_MAX_REGIONS", "5"))
	cfg.SatSource.ReportType = getEnv("SAT_SOURCE_REPORT_TYPE", "seasonal")
	cfg.SatSource.YearCount = parseInt(getEnv("SAT_SOURCE_YEAR_COUNT", "1"))
	cfg.SatSource.CallbackURL = getEnv("SAT_SOURCE_CALLBACK_URL", "")

	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "3"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.AttemptTimeout = parseDuration(getEnv("ATTEMPT_TIMEOUT", "20s"))

	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	cfg.Cache.Duration = parseDuration(getEnv("CACHE_DURATION", "10m"))
	cfg.Cache.MaxSize = parseInt(getEnv("MAX_CACHE_SIZE", "1000"))

	cfg.Scheduler.Enabled = parseBool(getEnv("PREFETCH_ENABLED", "false"))
	cfg.Scheduler.CronSpec = getEnv("PREFETCH_CRON", "@every 15m")
	cfg.Scheduler.WindowDays = parseInt(getEnv("PREFETCH_WINDOW_DAYS", "5"))
	cfg.Scheduler.Locations = parseLocations(getEnv("PREFETCH_LOCATIONS", "Prague:50.0755:14.4378,London:51.5074:-0.1278"))

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}

// parseLocations parses a comma-separated list of name:latitude:longitude
// triples. Malformed entries are skipped with a warning.
func parseLocations(value string) []models.Location {
	var locations []models.Location
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			zap.L().Warn("Skipping malformed location entry", zap.String("entry", entry))
			continue
		}
		lat, latErr := strconv.ParseFloat(parts[1], 64)
		lon, lonErr := strconv.ParseFloat(parts[2], 64)
		if latErr != nil || lonErr != nil {
			zap.L().Warn("Skipping location with invalid coordinates", zap.String("entry", entry))
			continue
		}
		locations = append(locations, models.Location{Name: parts[0], Latitude: lat, Longitude: lon})
	}
	return locations
}
