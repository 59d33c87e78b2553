package logging

import (
	"context"
)

type runFieldsKey struct{}

// RunFields identify the run a log record belongs to.
type RunFields struct {
	RunID     string
	TenantID  string
	VersionID string
}

// WithRun returns ctx carrying fields. Non-empty fields override the ones
// already stored in ctx.
func WithRun(ctx context.Context, fields RunFields) context.Context {
	current := Run(ctx)
	if fields.RunID != "" {
		current.RunID = fields.RunID
	}
	if fields.TenantID != "" {
		current.TenantID = fields.TenantID
	}
	if fields.VersionID != "" {
		current.VersionID = fields.VersionID
	}
	return context.WithValue(ctx, runFieldsKey{}, current)
}

// Run returns the run fields stored in ctx.
func Run(ctx context.Context) RunFields {
	f, _ := ctx.Value(runFieldsKey{}).(RunFields)
	return f
}
