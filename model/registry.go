package model

import (
	"sync"
)

// EndpointConfig describes one reachable model endpoint.
type EndpointConfig struct {
	// Provider is the wire format ("openai" or "anthropic").
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty means the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates the request. Empty falls back to the
	// provider's environment variable.
	APIKey string `json:"-" yaml:"api_key,omitempty"`

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// CapabilityConfig lists endpoints serving a capability, in order of
// preference.
type CapabilityConfig struct {
	Description string   `json:"description" yaml:"description"`
	Preferred   []string `json:"preferred" yaml:"preferred"`
	Fallback    []string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Registry resolves capabilities to healthy endpoints.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	health       *healthState
}

// NewRegistry creates a registry from explicit configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		health:       newHealthState(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry wires every capability to a single endpoint. Used
// when the config file names one interpreter model for everything.
func NewDefaultRegistry(name string, endpoint *EndpointConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(allCapabilities))
	for c := range allCapabilities {
		caps[c] = &CapabilityConfig{
			Description: c.String(),
			Preferred:   []string{name},
		}
	}
	return NewRegistry(caps, map[string]*EndpointConfig{name: endpoint})
}

// GetEndpoint returns the endpoint registered under name, or nil.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// FallbackChain returns the ordered endpoint names for a capability:
// preferred first, then fallbacks, deduplicated.
func (r *Registry) FallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.capabilities[c]
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(cfg.Preferred)+len(cfg.Fallback))
	var chain []string
	for _, name := range append(append([]string{}, cfg.Preferred...), cfg.Fallback...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}
	return chain
}

// AvailableFallbackChain filters the chain by circuit state. When the
// filter empties the chain entirely, the unfiltered chain is returned
// so a request can still probe a recovering endpoint.
func (r *Registry) AvailableFallbackChain(c Capability) []string {
	chain := r.FallbackChain(c)

	var available []string
	for _, name := range chain {
		if r.health.available(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// IsEndpointAvailable reports whether the endpoint's circuit admits
// traffic.
func (r *Registry) IsEndpointAvailable(name string) bool {
	return r.health.available(name)
}

// MarkEndpointSuccess records a successful call and closes the circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.health.markSuccess(name)
}

// MarkEndpointFailure records a failed call; enough consecutive
// failures open the circuit.
func (r *Registry) MarkEndpointFailure(name string) {
	r.health.markFailure(name)
}

// EndpointHealthSnapshot returns a copy of the endpoint's health.
func (r *Registry) EndpointHealthSnapshot(name string) EndpointHealth {
	return r.health.snapshot(name)
}
