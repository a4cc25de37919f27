package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
)

const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// openMeteoMetricParams maps canonical metric names onto Open-Meteo's daily
// parameter vocabulary.
var openMeteoMetricParams = map[string]string{
	models.MetricTemperatureMax:           "temperature_2m_max",
	models.MetricTemperatureMin:           "temperature_2m_min",
	models.MetricPrecipitationProbability: "precipitation_probability_mean",
}

// OpenMeteoClient is the reference adapter: query-parameter request,
// index-aligned array response, no authentication.
type OpenMeteoClient struct {
	providerID string
	weatherURL string
	transport  *Transport
	logger     *zap.Logger
}

func NewOpenMeteoClient(providerID string, config map[string]any, _ map[string]string, deps Deps) (ProviderClient, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenMeteoClient{
		providerID: providerID,
		weatherURL: configString(config, "weather_url", DefaultOpenMeteoURL),
		transport:  NewTransport(providerID, deps.Transport, deps.HTTPClient, logger),
		logger:     logger,
	}, nil
}

func (c *OpenMeteoClient) ProviderID() string {
	return c.providerID
}

func (c *OpenMeteoClient) BuildPayload(spec *models.ReportSpec) (map[string]any, error) {
	daily := make([]string, 0, len(spec.Metrics))
	for _, metric := range spec.Metrics {
		if param, ok := openMeteoMetricParams[metric]; ok {
			daily = append(daily, param)
		}
	}
	if len(daily) == 0 {
		return nil, NewRequestError(c.providerID, "no supported metrics requested for Open-Meteo")
	}

	payload := map[string]any{
		"latitude":   spec.Location.Latitude,
		"longitude":  spec.Location.Longitude,
		"daily":      strings.Join(daily, ","),
		"timezone":   "auto",
		"start_date": spec.Timeframe.Start.String(),
		"end_date":   spec.Timeframe.End.String(),
	}
	if spec.Units == models.UnitsImperial {
		payload["temperature_unit"] = "fahrenheit"
	}
	return payload, nil
}

// SignRequest is a no-op: Open-Meteo does not require authentication.
func (c *OpenMeteoClient) SignRequest(payload map[string]any, _ *models.ReportSpec) (*SignedRequest, error) {
	return &SignedRequest{Payload: payload, Headers: map[string]string{}}, nil
}

func (c *OpenMeteoClient) Dispatch(ctx context.Context, req *SignedRequest, spec *models.ReportSpec) (map[string]any, error) {
	query := url.Values{}
	for key, value := range req.Payload {
		query.Set(key, queryValue(value))
	}
	requestURL := c.weatherURL + "?" + query.Encode()

	c.logger.Info("Fetching weather data",
		zap.String("provider_id", c.providerID),
		zap.String("location", spec.Location.Name),
		zap.String("start", spec.Timeframe.Start.String()),
		zap.String("end", spec.Timeframe.End.String()))

	resp, err := c.transport.Call(ctx, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}
		for name, value := range req.Headers {
			r.Header.Set(name, value)
		}
		return r, nil
	}, func(body map[string]any) error {
		if _, ok := body["daily"]; !ok {
			return fmt.Errorf("missing daily field")
		}
		return nil
	})
	if err != nil {
		return nil, c.translateDispatchError(err)
	}
	return resp.Body, nil
}

func (c *OpenMeteoClient) translateDispatchError(err error) error {
	// Exhausted retries wrap the last transient cause; that is upstream
	// unavailability, not a rejection, so it must win over the status branch.
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return &TransportError{Provider: c.providerID, Cause: err}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return &RequestError{
			Provider: c.providerID,
			Message:  fmt.Sprintf("Open-Meteo returned HTTP %d", statusErr.StatusCode),
			Cause:    statusErr,
		}
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return &RequestError{Provider: c.providerID, Message: "Open-Meteo returned an invalid JSON payload", Cause: decodeErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Provider: c.providerID, Cause: err}
}

func (c *OpenMeteoClient) ParseResponse(raw map[string]any, spec *models.ReportSpec) (*models.ProviderDataset, error) {
	daily, _ := raw["daily"].(map[string]any)
	if daily == nil {
		return nil, NewRequestError(c.providerID, "Open-Meteo response did not include daily content")
	}

	times, _ := daily["time"].([]any)
	points := make([]models.WeatherDataPoint, 0, len(times))
	for idx, rawDay := range times {
		day, ok := rawDay.(string)
		if !ok {
			return nil, NewRequestError(c.providerID, "Open-Meteo returned a non-string date at index %d", idx)
		}
		date, err := models.ParseDate(day)
		if err != nil {
			return nil, &RequestError{Provider: c.providerID, Message: err.Error(), Cause: err}
		}

		point := models.WeatherDataPoint{Date: date}
		if requested(spec.Metrics, models.MetricTemperatureMax) {
			point.TemperatureMax = seriesValue(daily, "temperature_2m_max", idx)
		}
		if requested(spec.Metrics, models.MetricTemperatureMin) {
			point.TemperatureMin = seriesValue(daily, "temperature_2m_min", idx)
		}
		if requested(spec.Metrics, models.MetricPrecipitationProbability) {
			point.PrecipitationProbability = seriesValue(daily, "precipitation_probability_mean", idx)
		}
		points = append(points, point)
	}

	c.logger.Info("Weather data parsed",
		zap.String("provider_id", c.providerID),
		zap.String("location", spec.Location.Name),
		zap.Int("days", len(points)))

	return &models.ProviderDataset{
		ProviderID:  c.providerID,
		Source:      "open-meteo",
		Granularity: models.GranularityDaily,
		Data:        points,
	}, nil
}

func requested(metrics []string, metric string) bool {
	for _, m := range metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// seriesValue reads the idx-th element of an index-aligned metric array.
// Out-of-range indexes and non-numeric values yield absence, not zero.
func seriesValue(daily map[string]any, key string, idx int) *float64 {
	series, _ := daily[key].([]any)
	if idx >= len(series) {
		return nil
	}
	return maybeFloat(series[idx])
}

func queryValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
