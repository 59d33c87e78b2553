// Package ports declares the collaborators the run service depends on:
// run persistence, the credit ledger and the event bus. Implementations
// live outside the engine; pkg/runstore/sqlite provides local ones.
package ports

import (
	"context"
	"time"

	"mercator-hq/relay/pkg/llm"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	// RunStatusSucceeded means a provider produced a final output.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed means every attempt failed.
	RunStatusFailed RunStatus = "failed"
)

// Run is the persisted record of one "run a model version" request.
type Run struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	VersionID string `json:"version_id"`

	// InputHash identifies the canonical input and keys the run cache.
	InputHash string `json:"input_hash"`

	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`

	// Input holds the messages the run was executed with.
	Input []llm.Message `json:"input"`

	Output *llm.StructuredOutput `json:"output,omitempty"`
	Usage  llm.LLMUsage          `json:"usage"`

	// Cost is the USD cost of every attempt, failed ones included.
	Cost float64 `json:"cost_usd"`

	Status       RunStatus `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	AttemptCount int           `json:"attempt_count"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RunCreatedEvent announces a new run to downstream consumers.
type RunCreatedEvent struct {
	RunID     string    `json:"run_id"`
	TenantID  string    `json:"tenant_id"`
	VersionID string    `json:"version_id"`
	Status    RunStatus `json:"status"`
	Cost      float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`

	// Trace carries the W3C trace context of the run that produced the
	// event, so consumers can continue its trace.
	Trace map[string]string `json:"trace,omitempty"`
}

// RunStore persists runs and serves cached results.
type RunStore interface {
	// Save persists a run. Saving an existing ID replaces it.
	Save(ctx context.Context, run *Run) error

	// FindCached returns the latest successful run of versionID with the
	// given input hash. It returns nil, nil when there is none.
	FindCached(ctx context.Context, versionID, inputHash string) (*Run, error)
}

// CreditLedger bills tenants for completed runs.
type CreditLedger interface {
	Decrement(ctx context.Context, tenantID string, amountUSD float64) error
}

// EventBus publishes run lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, event RunCreatedEvent) error
}
