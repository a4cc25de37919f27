package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
	"github.com/skyfield-labs/weather-report-agent/internal/services"
)

// Scheduler prefetches reports for a fixed set of locations on a cron spec
// so the cache is warm before interactive traffic arrives. Only the direct
// Open-Meteo integration is prefetched; callback-driven providers need a
// caller-supplied reference id.
type Scheduler struct {
	reports    *services.ReportService
	logger     *zap.Logger
	locations  []models.Location
	windowDays int
	cron       *cron.Cron

	mu       sync.Mutex
	running  bool
	fetching bool
	lastRun  time.Time
}

func New(reports *services.ReportService, locations []models.Location, windowDays int, logger *zap.Logger) *Scheduler {
	if windowDays < 1 {
		windowDays = 1
	}
	return &Scheduler{
		reports:    reports,
		logger:     logger,
		locations:  locations,
		windowDays: windowDays,
		cron:       cron.New(),
	}
}

// Start registers the prefetch job and kicks off an immediate run so the
// cache is populated at boot rather than at the first cron tick.
func (s *Scheduler) Start(cronSpec string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(cronSpec, s.runFetch); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info("Prefetch scheduler started",
		zap.String("cron", cronSpec),
		zap.Int("locations", len(s.locations)),
		zap.Int("window_days", s.windowDays))

	go s.runFetch()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Prefetch scheduler stopped")
}

func (s *Scheduler) runFetch() {
	s.mu.Lock()
	if s.fetching {
		s.mu.Unlock()
		s.logger.Warn("Previous prefetch still running, skipping this tick")
		return
	}
	s.fetching = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetching = false
		s.lastRun = time.Now()
		s.mu.Unlock()
	}()

	start := time.Now()
	now := time.Now().UTC()
	timeframe := models.Timeframe{
		Start: models.Date{Time: now.Truncate(24 * time.Hour)},
		End:   models.Date{Time: now.AddDate(0, 0, s.windowDays-1).Truncate(24 * time.Hour)},
	}

	succeeded := 0
	for _, loc := range s.locations {
		spec := &models.ReportSpec{
			Location:   loc,
			Timeframe:  timeframe,
			Metrics:    []string{models.MetricTemperatureMax, models.MetricTemperatureMin, models.MetricPrecipitationProbability},
			Units:      models.UnitsMetric,
			ProviderID: "open-meteo",
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := s.reports.FetchReport(ctx, spec)
		cancel()
		if err != nil {
			s.logger.Error("Prefetch failed",
				zap.String("location", loc.Name),
				zap.Error(err))
			continue
		}
		succeeded++
	}

	s.logger.Info("Prefetch run completed",
		zap.Int("succeeded", succeeded),
		zap.Int("total", len(s.locations)),
		zap.Duration("duration", time.Since(start)))
}

// LastRun reports when the most recent prefetch finished. Zero means no run
// has completed yet.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
