// Package completion runs single completion attempts against one provider.
//
// An Engine pairs a provider adapter with its pooled HTTP transport. Complete
// posts one request and extracts a StructuredOutput from the response;
// Stream does the same over SSE, yielding partial outputs as they form:
//
//	engine := completion.NewEngine(adapter, transport,
//	    completion.WithProcessor(processor),
//	    completion.WithSupportCache(cache),
//	)
//
//	var raw llm.RawCompletion
//	for out, err := range engine.Stream(ctx, messages, opts, &raw) {
//	    if err != nil {
//	        return err
//	    }
//	    render(out)
//	}
//
// Output extraction: without an output schema the output is the completion
// text. With one, the text is JSON-extracted (code fences stripped, lenient
// fallback) and validated. Invalid JSON is failed_generation unless native
// tool calls were returned; a schema mismatch is invalid_generation. Both are
// retryable.
//
// Usage in the caller's RawCompletion is finalized after every attempt,
// including failed ones, so cost accounting survives errors.
//
// The engine never retries. Attempts and failover belong to
// routing.Orchestrator.
package completion
