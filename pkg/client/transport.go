package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/metrics"
)

const (
	minRetries = 1
	maxRetries = 6
)

// HTTPClient abstracts *http.Client so tests can stub the wire.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportConfig bundles the resilience knobs shared by all providers.
type TransportConfig struct {
	// MaxRetries is the total number of attempts, clamped to [1,6].
	MaxRetries int
	// RetryDelay is the first backoff interval; it doubles on every
	// subsequent attempt.
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	BreakerTimeout time.Duration
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.MaxRetries < minRetries {
		c.MaxRetries = minRetries
	}
	if c.MaxRetries > maxRetries {
		c.MaxRetries = maxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 20 * time.Second
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// HTTPStatusError is a non-2xx response. Body keeps the raw bytes so adapters
// can decode provider error payloads out of it.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Transient reports whether the status is safe to retry.
func (e *HTTPStatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

// RetryExhaustedError means every attempt failed on a transient condition.
// It wraps the last underlying cause so callers can still inspect it, but the
// classification is upstream-unavailable, not a clean rejection.
type RetryExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts, last error: %v", e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// DecodeError is a 2xx response whose body is not valid JSON. Never retried.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON payload: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Response is a decoded upstream reply. Body is nil when the JSON document
// is not an object.
type Response struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

// ShapeCheck validates the minimal shape of a successful response. A response
// that decodes as JSON but fails the check is retried under the same policy
// as a transient failure.
type ShapeCheck func(body map[string]any) error

// Transport wraps HTTP calls with retry, exponential backoff, transient-error
// classification and a circuit breaker.
type Transport struct {
	name       string
	client     HTTPClient
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewTransport(name string, cfg TransportConfig, httpClient HTTPClient, logger *zap.Logger) *Transport {
	cfg = cfg.withDefaults()

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.AttemptTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Transport{
		name:       name,
		client:     httpClient,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Call executes the request produced by build, retrying transient failures
// with exponential backoff. Non-transient HTTP statuses abort immediately and
// are returned as *HTTPStatusError; malformed JSON on a 2xx is returned as
// *DecodeError without retry; shape check failures are retried. Exhausting
// every attempt on transient conditions yields *RetryExhaustedError.
func (t *Transport) Call(ctx context.Context, build func() (*http.Request, error), check ShapeCheck) (*Response, error) {
	start := time.Now()

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.callWithRetry(ctx, build, check)
	})

	metrics.ProviderRequestDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderRequests.WithLabelValues(t.name, "error").Inc()
		return nil, err
	}

	metrics.ProviderRequests.WithLabelValues(t.name, "success").Inc()
	return result.(*Response), nil
}

func (t *Transport) callWithRetry(ctx context.Context, build func() (*http.Request, error), check ShapeCheck) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryDelay << (attempt - 1)
			metrics.ProviderRetries.WithLabelValues(t.name).Inc()
			t.logger.Debug("Retrying request",
				zap.String("provider", t.name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("creating request failed: %w", err)
		}
		req = req.WithContext(ctx)

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Connection-level failures and timeouts are transient.
			lastErr = err
			t.logger.Warn("HTTP request failed",
				zap.String("provider", t.name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: body}
			if !statusErr.Transient() {
				return nil, statusErr
			}
			lastErr = statusErr
			t.logger.Warn("Transient HTTP status",
				zap.String("provider", t.name),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			continue
		}

		decoded, decodeErr := decodeObject(body)
		if decodeErr != nil {
			return nil, &DecodeError{Cause: decodeErr}
		}

		if check != nil {
			if err := check(decoded); err != nil {
				lastErr = fmt.Errorf("response shape check failed: %w", err)
				t.logger.Warn("Response failed shape check",
					zap.String("provider", t.name),
					zap.Int("attempt", attempt+1),
					zap.Error(err))
				continue
			}
		}

		t.logger.Debug("Request successful",
			zap.String("provider", t.name),
			zap.Int("status", resp.StatusCode),
			zap.Int("body_size", len(body)))

		return &Response{StatusCode: resp.StatusCode, Body: decoded, Raw: body}, nil
	}

	return nil, &RetryExhaustedError{Attempts: t.maxRetries, Cause: lastErr}
}

// decodeObject parses body as JSON. A top-level non-object document is valid
// JSON but yields a nil map; adapters then fail on missing content.
func decodeObject(body []byte) (map[string]any, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	decoded, _ := payload.(map[string]any)
	return decoded, nil
}
