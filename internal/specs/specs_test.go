package specs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *ProviderSpec {
	return &ProviderSpec{
		ProviderID: "sat-source",
		BaseURL:    "https://api.satsource.ag",
		Auth: AuthConfig{
			Scheme:  "header",
			Header:  "api-key",
			Secrets: map[string]string{"api_key": "secret"},
		},
		Endpoints: []EndpointConfig{
			{Name: "reports", Method: "POST", Path: "/v2/reports", Stable: true},
		},
	}
}

func TestProviderSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProviderSpec)
		wantErr string
	}{
		{"valid", func(s *ProviderSpec) {}, ""},
		{"missing provider id", func(s *ProviderSpec) { s.ProviderID = "  " }, "provider_id is required"},
		{"missing base url", func(s *ProviderSpec) { s.BaseURL = "" }, "base_url is required"},
		{"no endpoints", func(s *ProviderSpec) { s.Endpoints = nil }, "at least one endpoint"},
		{"endpoint without path", func(s *ProviderSpec) { s.Endpoints[0].Path = "" }, "has no path"},
		{"endpoint without method", func(s *ProviderSpec) { s.Endpoints[0].Method = "" }, "has no method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			err := spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProviderSpecSanitizedStripsSecrets(t *testing.T) {
	spec := validSpec()

	sanitized := spec.Sanitized()

	auth, ok := sanitized["auth"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, auth["has_secrets"])
	_, hasSecrets := auth["secrets"]
	assert.False(t, hasSecrets, "secret values must never be echoed")

	spec.Auth.Secrets = nil
	auth = spec.Sanitized()["auth"].(map[string]any)
	assert.Equal(t, false, auth["has_secrets"])
}

func TestRegistryUpsertAndGet(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Upsert(validSpec()))

	got, ok := registry.Get("sat-source")
	require.True(t, ok)
	assert.Equal(t, "https://api.satsource.ag", got.BaseURL)

	_, ok = registry.Get("acme")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidSpec(t *testing.T) {
	registry := NewRegistry()

	bad := validSpec()
	bad.BaseURL = ""
	assert.Error(t, registry.Upsert(bad))
	assert.Empty(t, registry.Providers())
}

func TestRegistryUpsertReplaces(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Upsert(validSpec()))

	updated := validSpec()
	updated.BaseURL = "https://api.satsource.ag/v3"
	require.NoError(t, registry.Upsert(updated))

	got, _ := registry.Get("sat-source")
	assert.Equal(t, "https://api.satsource.ag/v3", got.BaseURL)
	assert.Equal(t, []string{"sat-source"}, registry.Providers())
}

func TestSatSourceSpecSeed(t *testing.T) {
	spec := SatSourceSpec("sat-source", "secret-key")

	require.NoError(t, spec.Validate())
	assert.Equal(t, "sat-source", spec.ProviderID)
	assert.Len(t, spec.Endpoints, 2)
	require.NotNil(t, spec.Callback)
	assert.Equal(t, "report.completed", spec.Callback.Event)
	assert.Contains(t, spec.Callback.PayloadFields, "referenceId")

	auth := spec.Sanitized()["auth"].(map[string]any)
	assert.Equal(t, true, auth["has_secrets"])

	noKey := SatSourceSpec("sat-source", "")
	auth = noKey.Sanitized()["auth"].(map[string]any)
	assert.Equal(t, false, auth["has_secrets"])
}
