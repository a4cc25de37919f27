package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

type stubProvider struct {
	providerID string
	fetches    *int32
	err        error
}

func (s *stubProvider) ProviderID() string { return s.providerID }

func (s *stubProvider) BuildPayload(spec *models.ReportSpec) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{}, nil
}

func (s *stubProvider) SignRequest(payload map[string]any, _ *models.ReportSpec) (*client.SignedRequest, error) {
	return &client.SignedRequest{Payload: payload, Headers: map[string]string{}}, nil
}

func (s *stubProvider) Dispatch(ctx context.Context, req *client.SignedRequest, _ *models.ReportSpec) (map[string]any, error) {
	atomic.AddInt32(s.fetches, 1)
	return map[string]any{}, nil
}

func (s *stubProvider) ParseResponse(raw map[string]any, _ *models.ReportSpec) (*models.ProviderDataset, error) {
	return &models.ProviderDataset{
		ProviderID:  s.providerID,
		Source:      s.providerID,
		Granularity: models.GranularityDaily,
	}, nil
}

func newStubService(t *testing.T, fetches *int32, providerErr error) *ReportService {
	t.Helper()
	factory := client.NewFactory(map[string]*client.RegistryEntry{
		"stub": {
			New: func(providerID string, _ map[string]any, _ map[string]string, _ client.Deps) (client.ProviderClient, error) {
				return &stubProvider{providerID: providerID, fetches: fetches, err: providerErr}, nil
			},
		},
	}, client.Deps{Logger: zap.NewNop()})

	cache := NewDatasetCache(time.Minute, 10, zap.NewNop())
	t.Cleanup(cache.Stop)
	return NewReportService(factory, cache, zap.NewNop())
}

func validSpec() *models.ReportSpec {
	return &models.ReportSpec{
		Location: models.Location{Name: "Prague", Latitude: 50.0755, Longitude: 14.4378},
		Timeframe: models.Timeframe{
			Start: models.NewDate(2026, 3, 1),
			End:   models.NewDate(2026, 3, 7),
		},
		Metrics:    []string{models.MetricTemperatureMax},
		Units:      models.UnitsMetric,
		ProviderID: "stub",
	}
}

func TestFetchReportStampsRequestID(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	spec := validSpec()
	_, err := service.FetchReport(context.Background(), spec)
	require.NoError(t, err)
	assert.NotEmpty(t, spec.RequestID)
}

func TestFetchReportKeepsCallerRequestID(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	spec := validSpec()
	spec.RequestID = "req-fixed"
	_, err := service.FetchReport(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "req-fixed", spec.RequestID)
}

func TestFetchReportServesSecondCallFromCache(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	_, err := service.FetchReport(context.Background(), validSpec())
	require.NoError(t, err)
	_, err = service.FetchReport(context.Background(), validSpec())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "second identical spec must be a cache hit")
}

func TestFetchReportDistinctSpecsAreNotConflated(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	_, err := service.FetchReport(context.Background(), validSpec())
	require.NoError(t, err)

	other := validSpec()
	other.Location.Name = "Brno"
	_, err = service.FetchReport(context.Background(), other)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestFetchReportInvalidSpec(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	spec := validSpec()
	spec.Metrics = nil
	_, err := service.FetchReport(context.Background(), spec)
	require.Error(t, err)

	reqErr, ok := err.(*client.RequestError)
	require.True(t, ok, "expected *RequestError, got %T", err)
	assert.Contains(t, reqErr.Message, "at least one metric")
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetches))
}

func TestFetchReportUnknownProvider(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, nil)

	spec := validSpec()
	spec.ProviderID = "nope"
	_, err := service.FetchReport(context.Background(), spec)
	assert.ErrorIs(t, err, client.ErrUnknownProvider)
}

func TestFetchReportProviderErrorsAreNotCached(t *testing.T) {
	var fetches int32
	service := newStubService(t, &fetches, client.NewRequestError("stub", "rejected"))

	_, err := service.FetchReport(context.Background(), validSpec())
	require.Error(t, err)

	cached, ok := service.cache.Get(cacheKey(validSpec()))
	assert.False(t, ok)
	assert.Nil(t, cached)
}
