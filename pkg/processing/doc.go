// Package processing finalizes usage and cost for provider attempts.
//
// A Processor combines the token estimators in tokens with the pricing
// calculator in costs. The completion engine calls it twice per attempt:
//
//   - SeedUsage before the request is sent, to record input-derived counts
//     such as the prompt image count;
//   - FinalizeUsage after the attempt, successful or not, to estimate any
//     token counts the provider left out and price the result.
//
// # Basic Usage
//
//	processor := processing.NewProcessor(&cfg.Processing)
//
//	raw := &llm.RawCompletion{}
//	processor.SeedUsage(messages, &raw.Usage)
//	// ... call the provider, filling raw.Response and raw.Usage ...
//	if err := processor.FinalizeUsage("openai", "gpt-4o", messages, opts.EnabledTools, raw); err != nil {
//		logger.Warn("usage finalization incomplete", "error", err)
//	}
//
// Costs are always computed from whatever usage is known. Estimated token
// counts are only used when the provider did not report its own.
package processing
