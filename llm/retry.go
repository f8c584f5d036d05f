package llm

import "time"

// RetryConfig holds retry behavior for LLM requests.
type RetryConfig struct {
	// MaxAttempts is the maximum attempts per endpoint.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}
