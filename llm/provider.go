package llm

import (
	"net/http"
	"sync"
)

// Provider adapts the client to one wire format (OpenAI chat
// completions or Anthropic messages). Implementations are stateless;
// per-request state (API key, model) arrives through the arguments.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic").
	Name() string

	// BuildURL constructs the full API endpoint URL from a base URL.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication and version headers. apiKey may
	// be empty, in which case the provider falls back to its
	// environment variable.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body. toolChoice names
	// the tool the model is forced to call; empty means auto.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int,
		tools []ToolDefinition, toolChoice string) ([]byte, error)

	// ParseResponse extracts content and tool calls from the
	// provider-specific response JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry. Providers register
// themselves from init().
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name, or nil.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}
