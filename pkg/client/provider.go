// Package client implements the provider integration pipeline: a resilient
// HTTP transport, the provider client contract, a registry/factory resolving
// provider identifiers into configured clients, the concrete adapters, and
// the callback correlation registry.
package client

import (
	"context"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
)

// SignedRequest pairs the payload body with the authentication headers
// produced by the signing step. Dispatch consumes it as-is.
type SignedRequest struct {
	Payload map[string]any
	Headers map[string]string
}

// ProviderClient is the capability contract every provider adapter supplies.
//
// BuildPayload is a pure transformation that validates all provider-specific
// business constraints and fails fast, before any network call. SignRequest
// attaches authentication headers and never mutates the payload. Dispatch
// performs the network call through the resilient transport and translates
// transport failures into provider error kinds. ParseResponse normalizes the
// raw response into the canonical dataset.
type ProviderClient interface {
	ProviderID() string
	BuildPayload(spec *models.ReportSpec) (map[string]any, error)
	SignRequest(payload map[string]any, spec *models.ReportSpec) (*SignedRequest, error)
	Dispatch(ctx context.Context, req *SignedRequest, spec *models.ReportSpec) (map[string]any, error)
	ParseResponse(raw map[string]any, spec *models.ReportSpec) (*models.ProviderDataset, error)
}

// Fetch is the single entry point callers use. It runs the four pipeline
// steps in strict sequence and suppresses nothing: callers see the most
// specific error kind any step produced.
func Fetch(ctx context.Context, c ProviderClient, spec *models.ReportSpec) (*models.ProviderDataset, error) {
	payload, err := c.BuildPayload(spec)
	if err != nil {
		return nil, err
	}
	signed, err := c.SignRequest(payload, spec)
	if err != nil {
		return nil, err
	}
	raw, err := c.Dispatch(ctx, signed, spec)
	if err != nil {
		return nil, err
	}
	return c.ParseResponse(raw, spec)
}
