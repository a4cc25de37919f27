package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

// ReportService drives the provider pipeline for one report spec: stamp a
// request id, resolve the client, fetch, cache.
type ReportService struct {
	factory *client.Factory
	cache   *DatasetCache
	logger  *zap.Logger
}

func NewReportService(factory *client.Factory, cache *DatasetCache, logger *zap.Logger) *ReportService {
	return &ReportService{
		factory: factory,
		cache:   cache,
		logger:  logger,
	}
}

// FetchReport resolves the spec's provider and runs the full pipeline.
// Results are cached per spec so a repeated request inside the TTL window is
// served locally.
func (s *ReportService) FetchReport(ctx context.Context, spec *models.ReportSpec) (*models.ProviderDataset, error) {
	if spec.RequestID == "" {
		spec.RequestID = uuid.NewString()
	}
	if err := spec.Validate(); err != nil {
		return nil, &client.RequestError{Provider: spec.ProviderID, Message: err.Error(), Cause: err}
	}

	key := cacheKey(spec)
	if s.cache != nil {
		if dataset, ok := s.cache.Get(key); ok {
			s.logger.Debug("Serving dataset from cache",
				zap.String("request_id", spec.RequestID),
				zap.String("provider_id", spec.ProviderID))
			return dataset, nil
		}
	}

	c, err := s.factory.Client(spec.ProviderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Fetching provider dataset",
		zap.String("request_id", spec.RequestID),
		zap.String("provider_id", spec.ProviderID),
		zap.String("location", spec.Location.Name),
		zap.String("reference_id", spec.ReferenceID))

	dataset, err := client.Fetch(ctx, c, spec)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, dataset)
	}
	return dataset, nil
}

// Providers lists the resolvable provider identifiers.
func (s *ReportService) Providers() []string {
	return s.factory.Providers()
}

func cacheKey(spec *models.ReportSpec) string {
	return strings.Join([]string{
		spec.ProviderID,
		spec.Location.Name,
		fmt.Sprintf("%.4f", spec.Location.Latitude),
		fmt.Sprintf("%.4f", spec.Location.Longitude),
		spec.Timeframe.Start.String(),
		spec.Timeframe.End.String(),
		strings.Join(spec.Metrics, ","),
		spec.Units,
		spec.ReferenceID,
	}, "|")
}
