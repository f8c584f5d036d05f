// Package metric registers the Prometheus collectors for the RPC
// surface, the interpreter, and the provider adapters.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCRequests counts JSON-RPC calls by method and outcome.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronoplan",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"})

	// ToolExecutions counts capability invocations by tool and outcome.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronoplan",
		Subsystem: "tool",
		Name:      "executions_total",
		Help:      "Tool executions by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// InterpreterLatency observes LLM interpreter round-trips.
	InterpreterLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chronoplan",
		Subsystem: "interpreter",
		Name:      "latency_seconds",
		Help:      "Interpreter call latency by capability and model.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"capability", "model"})

	// InterpreterErrors counts failed interpreter calls.
	InterpreterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronoplan",
		Subsystem: "interpreter",
		Name:      "errors_total",
		Help:      "Interpreter call failures by capability.",
	}, []string{"capability"})
)

// ObserveInterpreter is wired as the LLM client observer.
func ObserveInterpreter(capability, modelName string, duration time.Duration, err error) {
	InterpreterLatency.WithLabelValues(capability, modelName).Observe(duration.Seconds())
	if err != nil {
		InterpreterErrors.WithLabelValues(capability).Inc()
	}
}
