// Package structured turns completion text into validated JSON output.
//
// ExtractJSON pulls the JSON value out of free text (code fences, prose
// around the object, comments and trailing commas). ParsePartial decodes the
// in-flight prefix of a streamed object. Validator checks values against a
// JSON Schema, and OptionalSchema derives the relaxed variant used for
// partial outputs so that legitimately incomplete JSON is never rejected.
//
// SupportCache records, per task, model and schema hash, whether a vendor
// accepts the schema as a native generation constraint.
package structured
