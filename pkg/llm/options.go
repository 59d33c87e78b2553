package llm

// Options carries the execution properties of a single completion.
type Options struct {
	// Model is the canonical model identifier
	Model string `json:"model"`

	// Temperature controls sampling randomness
	Temperature float64 `json:"temperature"`

	// MaxTokens caps completion length. Nil means the model maximum.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// OutputSchema is the JSON Schema the output must satisfy (nil when free-form)
	OutputSchema map[string]any `json:"output_schema,omitempty"`

	// EnabledTools is the ordered set of tools the model may call
	EnabledTools []Tool `json:"enabled_tools,omitempty"`

	// StructuredGeneration asks adapters to constrain generation natively
	StructuredGeneration bool `json:"structured_generation,omitempty"`

	// TaskName scopes the schema-support cache
	TaskName string `json:"task_name,omitempty"`

	// TenantID identifies who is billed for the run
	TenantID string `json:"tenant_id,omitempty"`

	// VersionID identifies the version the run belongs to
	VersionID string `json:"version_id,omitempty"`
}

// HasTools reports whether any tool is enabled.
func (o *Options) HasTools() bool {
	return o != nil && len(o.EnabledTools) > 0
}

// WithoutStructuredGeneration returns a copy with native constraints disabled.
func (o Options) WithoutStructuredGeneration() Options {
	o.StructuredGeneration = false
	return o
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
