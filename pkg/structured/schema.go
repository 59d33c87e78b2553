package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates decoded JSON values against a compiled JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
	hash   string
}

// validators caches compiled schemas by hash. Compiling the same schema twice
// on a race is harmless.
var validators sync.Map

// NewValidator compiles schema. Compiled validators are cached by schema hash.
func NewValidator(schema map[string]any) (*Validator, error) {
	hash := SchemaHash(schema)
	if v, ok := validators.Load(hash); ok {
		return v.(*Validator), nil
	}

	doc, err := normalize(schema)
	if err != nil {
		return nil, err
	}

	loc := "mem://schemas/" + hash + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	v := &Validator{schema: compiled, hash: hash}
	actual, _ := validators.LoadOrStore(hash, v)
	return actual.(*Validator), nil
}

// Validate checks value against the schema.
func (v *Validator) Validate(value any) error {
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	if err := v.schema.Validate(normalized); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}

// Hash returns the hash of the schema the validator was compiled from.
func (v *Validator) Hash() string {
	return v.hash
}

// normalize round-trips v through JSON so that Go-typed values (structs,
// typed slices, ints from YAML) become the plain JSON types the validator
// expects.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return doc, nil
}

// Keywords that in-flight output cannot be expected to satisfy yet.
var partialUnsafeKeywords = []string{
	"required",
	"minItems",
	"minLength",
	"minProperties",
	"enum",
	"const",
	"pattern",
	"format",
}

// OptionalSchema derives the variant used for partial (in-stream) outputs:
// every field optional, and no constraint that a truncated value could
// violate. The input is not modified and the transformation is idempotent.
func OptionalSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	return relaxNode(schema)
}

func relaxNode(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}
	for _, k := range partialUnsafeKeywords {
		delete(out, k)
	}

	// Maps whose values are schemas
	for _, k := range []string{"properties", "patternProperties", "$defs", "definitions"} {
		if m, ok := out[k].(map[string]any); ok {
			relaxed := make(map[string]any, len(m))
			for name, sub := range m {
				relaxed[name] = relaxValue(sub)
			}
			out[k] = relaxed
		}
	}

	// Single schemas or lists of schemas
	for _, k := range []string{"items", "additionalProperties", "not", "if", "then", "else", "prefixItems", "anyOf", "oneOf", "allOf"} {
		if sub, ok := out[k]; ok {
			out[k] = relaxValue(sub)
		}
	}
	return out
}

func relaxValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return relaxNode(t)
	case []any:
		relaxed := make([]any, len(t))
		for i, sub := range t {
			relaxed[i] = relaxValue(sub)
		}
		return relaxed
	default:
		return v
	}
}
