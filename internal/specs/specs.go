// Package specs holds the administrative registry of provider integration
// specs. A spec captures everything an operator needs to review about an
// integration: endpoints, auth scheme, callback expectations and request
// parameters. Secrets are stored but never exposed through the read API.
package specs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type AuthConfig struct {
	Scheme  string            `json:"scheme"`
	Header  string            `json:"header,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`
}

type EndpointConfig struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Stable bool   `json:"stable"`
}

// CallbackExpectation documents the asynchronous delivery contract a provider
// honors after accepting a report request.
type CallbackExpectation struct {
	Event         string   `json:"event"`
	URLTemplate   string   `json:"url_template"`
	PayloadFields []string `json:"payload_fields,omitempty"`
}

type RequestParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// ProviderSpec is the full administrative description of one integration.
type ProviderSpec struct {
	ProviderID string               `json:"provider_id"`
	BaseURL    string               `json:"base_url"`
	Auth       AuthConfig           `json:"auth"`
	Endpoints  []EndpointConfig     `json:"endpoints"`
	Callback   *CallbackExpectation `json:"callback,omitempty"`
	Parameters []RequestParameter   `json:"parameters,omitempty"`
	Config     map[string]any       `json:"config,omitempty"`
}

// Validate checks the structural invariants of a spec before it is admitted
// into the registry.
func (s *ProviderSpec) Validate() error {
	if strings.TrimSpace(s.ProviderID) == "" {
		return fmt.Errorf("provider_id is required")
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	if len(s.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for i, ep := range s.Endpoints {
		if ep.Path == "" {
			return fmt.Errorf("endpoint %d has no path", i)
		}
		if ep.Method == "" {
			return fmt.Errorf("endpoint %q has no method", ep.Path)
		}
	}
	return nil
}

// Sanitized returns a copy safe to echo over the API. Secret values are
// stripped and replaced by a boolean marker so operators can tell whether
// credentials have been provisioned.
func (s *ProviderSpec) Sanitized() map[string]any {
	out := map[string]any{
		"provider_id": s.ProviderID,
		"base_url":    s.BaseURL,
		"auth": map[string]any{
			"scheme":      s.Auth.Scheme,
			"header":      s.Auth.Header,
			"has_secrets": len(s.Auth.Secrets) > 0,
		},
		"endpoints": s.Endpoints,
	}
	if s.Callback != nil {
		out["callback"] = s.Callback
	}
	if len(s.Parameters) > 0 {
		out["parameters"] = s.Parameters
	}
	if len(s.Config) > 0 {
		out["config"] = s.Config
	}
	return out
}

// Registry is an in-memory, concurrency-safe store of provider specs keyed
// by provider id. Upserting an existing id replaces the stored spec.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*ProviderSpec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*ProviderSpec)}
}

func (r *Registry) Upsert(spec *ProviderSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.ProviderID] = spec
	return nil
}

func (r *Registry) Get(providerID string) (*ProviderSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[providerID]
	return spec, ok
}

func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = make(map[string]*ProviderSpec)
}
