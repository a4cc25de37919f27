package client

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Deps carries the shared collaborators injected into every provider client
// at construction: logging, the wire, correlation state and resilience
// defaults. Nothing here is mutated by clients.
type Deps struct {
	Logger     *zap.Logger
	HTTPClient HTTPClient
	Callbacks  *CallbackRegistry
	Transport  TransportConfig
}

// Constructor builds a configured client for a provider id. It fails with a
// *ConfigurationError when the registry entry's business parameters are
// invalid; that failure is administrative, not per-request.
type Constructor func(providerID string, config map[string]any, secrets map[string]string, deps Deps) (ProviderClient, error)

// RegistryEntry describes how to instantiate one provider. Config and
// Secrets are owned by the registry; clients receive them read-only and must
// not mutate them.
type RegistryEntry struct {
	New     Constructor
	Config  map[string]any
	Secrets map[string]string
}

// Factory resolves provider identifiers into freshly constructed clients.
// Entries are built once at startup and are read-mostly afterwards; Upsert
// exists for explicit administrative replacement only.
type Factory struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
	deps    Deps
}

func NewFactory(entries map[string]*RegistryEntry, deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Callbacks == nil {
		deps.Callbacks = NewCallbackRegistry()
	}
	registered := make(map[string]*RegistryEntry, len(entries))
	for id, entry := range entries {
		registered[id] = entry
	}
	return &Factory{entries: registered, deps: deps}
}

// Client resolves a provider identifier. An empty or whitespace identifier
// is a client error, an unknown identifier is not-found, and a constructor
// failure is a configuration error.
func (f *Factory) Client(providerID string) (ProviderClient, error) {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return nil, ErrProviderIDRequired
	}

	f.mu.RLock()
	entry, ok := f.entries[id]
	f.mu.RUnlock()
	if !ok {
		f.deps.Logger.Warn("Unknown provider requested", zap.String("provider_id", id))
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}

	c, err := entry.New(id, entry.Config, entry.Secrets, f.deps)
	if err != nil {
		f.deps.Logger.Error("Provider misconfigured",
			zap.String("provider_id", id),
			zap.Error(err))
		return nil, err
	}
	return c, nil
}

// Upsert replaces the entry for a provider id.
func (f *Factory) Upsert(providerID string, entry *RegistryEntry) {
	f.mu.Lock()
	f.entries[providerID] = entry
	f.mu.Unlock()
}

// Providers returns the registered provider ids, sorted.
func (f *Factory) Providers() []string {
	f.mu.RLock()
	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Config accessors. Registry entries stay loosely typed so structural
// problems surface as configuration errors instead of panics.

func configString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func configInt(cfg map[string]any, key string, fallback int) (int, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}
