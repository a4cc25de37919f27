package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
	"github.com/skyfield-labs/weather-report-agent/internal/services"
	"github.com/skyfield-labs/weather-report-agent/internal/specs"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

type fakeProvider struct {
	err error
}

func (f *fakeProvider) ProviderID() string { return "fake" }

func (f *fakeProvider) BuildPayload(_ *models.ReportSpec) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{}, nil
}

func (f *fakeProvider) SignRequest(payload map[string]any, _ *models.ReportSpec) (*client.SignedRequest, error) {
	return &client.SignedRequest{Payload: payload, Headers: map[string]string{}}, nil
}

func (f *fakeProvider) Dispatch(_ context.Context, _ *client.SignedRequest, _ *models.ReportSpec) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeProvider) ParseResponse(_ map[string]any, _ *models.ReportSpec) (*models.ProviderDataset, error) {
	return &models.ProviderDataset{
		ProviderID:  "fake",
		Source:      "fake",
		Granularity: models.GranularityDaily,
		Data: []models.WeatherDataPoint{
			{Date: models.NewDate(2026, time.March, 1), TemperatureMax: models.Float64Ptr(12.5)},
		},
	}, nil
}

func newTestApp(t *testing.T, providerErr error) (*fiber.App, *client.CallbackRegistry) {
	t.Helper()

	callbacks := client.NewCallbackRegistry()
	factory := client.NewFactory(map[string]*client.RegistryEntry{
		"fake": {
			New: func(_ string, _ map[string]any, _ map[string]string, _ client.Deps) (client.ProviderClient, error) {
				return &fakeProvider{err: providerErr}, nil
			},
		},
	}, client.Deps{Logger: zap.NewNop(), Callbacks: callbacks})

	cache := services.NewDatasetCache(time.Minute, 10, zap.NewNop())
	t.Cleanup(cache.Stop)
	reports := services.NewReportService(factory, cache, zap.NewNop())

	providerSpecs := specs.NewRegistry()
	require.NoError(t, providerSpecs.Upsert(specs.SatSourceSpec("sat-source", "secret")))

	handler := NewHandler(reports, providerSpecs, callbacks, "http://localhost:8080", zap.NewNop())
	app := fiber.New()
	SetupRoutes(app, handler, zap.NewNop())
	return app, callbacks
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func reportRequest() map[string]any {
	return map[string]any{
		"location":  map[string]any{"name": "Prague", "latitude": 50.0755, "longitude": 14.4378},
		"timeframe": map[string]any{"start": "2026-03-01", "end": "2026-03-07"},
		"metrics":   []string{"temperature_max"},
		"units":     "metric",
	}
}

func TestCreateReportSuccess(t *testing.T) {
	app, _ := newTestApp(t, nil)

	payload := reportRequest()
	payload["provider_id"] = "fake"
	resp := postJSON(t, app, "/api/v1/reports", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["request_id"])

	dataset, ok := body["dataset"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fake", dataset["provider_id"])
}

func TestCreateReportErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		providerID  string
		providerErr error
		wantStatus  int
	}{
		{"missing provider id", "", nil, http.StatusUnprocessableEntity},
		{"unknown provider", "acme", nil, http.StatusNotFound},
		{"business rejection", "fake", client.NewRequestError("fake", "too many regions"), http.StatusUnprocessableEntity},
		{"upstream unavailable", "fake", &client.TransportError{Provider: "fake"}, http.StatusBadGateway},
		{"misconfigured provider", "fake", client.NewConfigurationError("fake", "broken entry"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t, tt.providerErr)

			payload := reportRequest()
			payload["provider_id"] = tt.providerID
			resp := postJSON(t, app, "/api/v1/reports", payload)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestCreateReportInvalidBody(t *testing.T) {
	app, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateReportInvalidCoordinates(t *testing.T) {
	app, _ := newTestApp(t, nil)

	payload := reportRequest()
	payload["provider_id"] = "fake"
	payload["location"] = map[string]any{"name": "Nowhere", "latitude": 120.0, "longitude": 0.0}
	resp := postJSON(t, app, "/api/v1/reports", payload)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProviderSpecLifecycle(t *testing.T) {
	app, _ := newTestApp(t, nil)

	t.Run("get seeded spec", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/sat-source", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		auth, ok := body["auth"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, auth["has_secrets"])
		_, leaked := auth["secrets"]
		assert.False(t, leaked, "secrets must not appear in API responses")
	})

	t.Run("unknown spec", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/acme", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("upsert new spec", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/providers", map[string]any{
			"provider_id": "acme-weather",
			"base_url":    "https://api.acme.example",
			"auth":        map[string]any{"scheme": "header", "header": "x-key"},
			"endpoints": []map[string]any{
				{"name": "reports", "method": "POST", "path": "/v1/reports"},
			},
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/acme-weather", nil)
		getResp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, getResp.StatusCode)
	})

	t.Run("invalid spec rejected", func(t *testing.T) {
		resp := postJSON(t, app, "/api/v1/providers", map[string]any{
			"provider_id": "broken",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestProviderCallbackMatching(t *testing.T) {
	app, callbacks := newTestApp(t, nil)

	callbackURL := "http://localhost:8080/api/v1/providers/sat-source/callback?ref=ref-1"
	callbacks.Record(callbackURL, client.Correlation{
		RequestID:   "req-1",
		ProviderID:  "sat-source",
		ReferenceID: "ref-1",
	})

	resp := postJSON(t, app, "/api/v1/providers/sat-source/callback?ref=ref-1", map[string]any{
		"referenceId": "ref-1",
		"status":      "completed",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestProviderCallbackUnmatchedStillAccepted(t *testing.T) {
	app, _ := newTestApp(t, nil)

	resp := postJSON(t, app, "/api/v1/providers/sat-source/callback?ref=stray", map[string]any{
		"referenceId": "stray",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestListProviders(t *testing.T) {
	app, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	providers, ok := body["providers"].([]any)
	require.True(t, ok)
	assert.Contains(t, providers, "fake")
}

func TestUnknownRouteReturns404(t *testing.T) {
	app, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
