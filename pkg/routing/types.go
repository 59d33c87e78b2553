package routing

import (
	"context"
	"iter"
	"time"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
)

// Engine runs single completion attempts against one provider.
// *completion.Engine implements it.
type Engine interface {
	Provider() string
	Complete(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) (*llm.StructuredOutput, error)
	Stream(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) iter.Seq2[*llm.StructuredOutput, error]
}

// healthReporter is implemented by engines whose transport tracks
// consecutive failures.
type healthReporter interface {
	Healthy() bool
}

// Recorder receives per-attempt metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordAttempt(provider, model, outcome string, duration time.Duration)
	RecordFailover(model, from, to string)
	RecordUsage(provider, model string, usage *llm.LLMUsage)
	UpdateHealth(provider string, healthy bool)
}

// Attempt records one call to one provider.
type Attempt struct {
	// Provider is the provider name.
	Provider string `json:"provider"`

	// Number counts attempts on this provider, starting at 1.
	Number int `json:"number"`

	// Duration is the wall time of the attempt.
	Duration time.Duration `json:"duration"`

	// Usage is the finalized usage of the attempt, priced when pricing is known.
	Usage llm.LLMUsage `json:"usage"`

	// ErrorCode is empty for the successful attempt.
	ErrorCode providers.ErrorCode `json:"error_code,omitempty"`

	// Err is the attempt's error, if any.
	Err error `json:"-"`
}

// Cost returns the attempt cost in USD.
func (a Attempt) Cost() float64 {
	return a.Usage.TotalCost()
}

// Result is the outcome of a successful run.
type Result struct {
	// Output is the final structured output.
	Output *llm.StructuredOutput

	// Provider is the provider that produced the output.
	Provider string

	// Attempts holds every attempt, including the failed ones.
	Attempts []Attempt

	// Raw is the raw completion of the successful attempt.
	Raw llm.RawCompletion

	// Usage is the successful attempt's usage.
	Usage llm.LLMUsage

	// Cost is the total cost in USD across all attempts.
	Cost float64
}

// RoutingStats is a point-in-time snapshot of orchestrator counters.
type RoutingStats struct {
	// TotalRuns is the number of runs started.
	TotalRuns int64

	// AttemptsPerProvider counts attempts by provider name.
	AttemptsPerProvider map[string]int64

	// ErrorsPerCode counts failed attempts by error code.
	ErrorsPerCode map[string]int64

	// Retries counts same-provider retries.
	Retries int64

	// Failovers counts switches to the next candidate.
	Failovers int64

	// Failures counts runs that ended in an error.
	Failures int64

	// LastResetTime is when statistics were last reset.
	LastResetTime time.Time
}
