package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
)

type cacheItem struct {
	dataset   *models.ProviderDataset
	expiresAt time.Time
}

// DatasetCache keeps recently fetched provider datasets so identical report
// specs within the TTL window do not hit the upstream again.
type DatasetCache struct {
	mu              sync.RWMutex
	items           map[string]cacheItem
	logger          *zap.Logger
	defaultDuration time.Duration
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

func NewDatasetCache(defaultDuration time.Duration, maxSize int, logger *zap.Logger) *DatasetCache {
	cache := &DatasetCache{
		items:           make(map[string]cacheItem),
		logger:          logger,
		defaultDuration: defaultDuration,
		maxSize:         maxSize,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go cache.startCleanup()

	return cache
}

func (c *DatasetCache) Set(key string, dataset *models.ProviderDataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict if cache is too large
	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = cacheItem{
		dataset:   dataset,
		expiresAt: time.Now().Add(c.defaultDuration),
	}

	c.logger.Debug("Dataset cached",
		zap.String("key", key),
		zap.String("provider_id", dataset.ProviderID))
}

func (c *DatasetCache) Get(key string) (*models.ProviderDataset, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}

	return item.dataset, true
}

func (c *DatasetCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.logger.Debug("Evicted oldest dataset from cache", zap.String("key", oldestKey))
	}
}

func (c *DatasetCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *DatasetCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		c.logger.Debug("Cleaned expired cache items", zap.Int("count", expiredCount))
	}
}

func (c *DatasetCache) Stop() {
	close(c.stopCleanup)
}

func (c *DatasetCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"items":            len(c.items),
		"max_size":         c.maxSize,
		"default_duration": c.defaultDuration.String(),
	}
}
