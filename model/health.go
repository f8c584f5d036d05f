package model

import (
	"sync"
	"time"
)

// EndpointHealth tracks the health of one model endpoint.
type EndpointHealth struct {
	Available       bool      `json:"available"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures circuit behavior for endpoint health.
type HealthConfig struct {
	// FailureThreshold is consecutive failures before the circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit stays closed to
	// traffic before a probe is allowed through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns the defaults used in production.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

type healthState struct {
	mu       sync.RWMutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
	}
}

func (h *healthState) markSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.status(name)
	status.Available = true
	status.LastSuccess = time.Now()
	status.FailureCount = 0
	status.CircuitOpen = false
}

func (h *healthState) markFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.status(name)
	status.LastFailure = time.Now()
	status.FailureCount++

	if status.FailureCount >= h.config.FailureThreshold {
		status.Available = false
		status.CircuitOpen = true
		status.CircuitOpenedAt = time.Now()
	}
}

// available reports whether traffic may flow to the endpoint. An open
// circuit half-opens once the recovery timeout has elapsed.
func (h *healthState) available(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.status(name)
	if !status.CircuitOpen {
		return true
	}
	if time.Since(status.CircuitOpenedAt) >= h.config.RecoveryTimeout {
		// Half-open: allow a probe, leave the circuit marked until a
		// success closes it.
		return true
	}
	return false
}

func (h *healthState) snapshot(name string) EndpointHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.statuses[name]; ok {
		return *status
	}
	return EndpointHealth{Available: true}
}

// status returns the mutable health entry; callers hold h.mu.
func (h *healthState) status(name string) *EndpointHealth {
	if status, ok := h.statuses[name]; ok {
		return status
	}
	status := &EndpointHealth{Available: true}
	h.statuses[name] = status
	return status
}
