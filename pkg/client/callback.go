package client

import "sync"

// Correlation ties an externally visible callback URL back to its
// originating request so a later out-of-band delivery can be matched.
type Correlation struct {
	RequestID   string `json:"request_id"`
	ProviderID  string `json:"provider_id"`
	ReferenceID string `json:"reference_id"`
}

// CallbackRegistry is the process-wide map from rendered callback URL to
// correlation metadata. Entries are written once per request, before
// dispatch, and never mutated afterwards; there is no expiry, so lifetime
// equals process lifetime. A production deployment should add TTL eviction.
type CallbackRegistry struct {
	mu      sync.RWMutex
	records map[string]Correlation
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{records: make(map[string]Correlation)}
}

// Record stores the correlation for a callback URL. Last write wins for a
// given URL; an empty URL is ignored.
func (r *CallbackRegistry) Record(callbackURL string, c Correlation) {
	if callbackURL == "" {
		return
	}
	r.mu.Lock()
	r.records[callbackURL] = c
	r.mu.Unlock()
}

func (r *CallbackRegistry) Get(callbackURL string) (Correlation, bool) {
	r.mu.RLock()
	c, ok := r.records[callbackURL]
	r.mu.RUnlock()
	return c, ok
}

func (r *CallbackRegistry) Clear() {
	r.mu.Lock()
	r.records = make(map[string]Correlation)
	r.mu.Unlock()
}

func (r *CallbackRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
