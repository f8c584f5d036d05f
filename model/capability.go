// Package model provides capability-based model selection for the NL
// interpreters. Interpreters ask for a capability ("routing",
// "extraction", ...) rather than a model name; the registry resolves
// the capability to an endpoint chain with health-aware fallback.
package model

// Capability is a semantic capability an interpreter requests.
type Capability string

const (
	// CapabilityRouting is the cheap, deterministic provider-routing
	// decision. Latency matters more than depth.
	CapabilityRouting Capability = "routing"

	// CapabilityExtraction is structured extraction of task, event,
	// availability, search, and optimization intents from free text.
	CapabilityExtraction Capability = "extraction"

	// CapabilityMatching is semantic matching: resolving vague entity
	// references and filtering items by meaning.
	CapabilityMatching Capability = "matching"

	// CapabilityAnalysis is schedule analysis and optimization
	// suggestion generation.
	CapabilityAnalysis Capability = "analysis"
)

// allCapabilities is the closed set; ParseCapability rejects others.
var allCapabilities = map[Capability]bool{
	CapabilityRouting:    true,
	CapabilityExtraction: true,
	CapabilityMatching:   true,
	CapabilityAnalysis:   true,
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	return allCapabilities[c]
}

// String returns the string form of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning "" for
// unknown values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
