// Package costs prices LLM usage.
//
// Pricing is configured per provider and model in USD per 1K tokens, with
// optional per-image and per-audio-second surcharges for models billed that
// way. Lookup tries the exact model name first, then the longest configured
// prefix (so "gpt-4o" prices "gpt-4o-2024-08-06"), then the provider's
// "default" entry, then the global default.
//
// # Usage
//
//	calculator := costs.NewCalculator(&cfg.Processing.Costs)
//
//	usage := &llm.LLMUsage{PromptTokens: llm.IntPtr(1200), CompletionTokens: llm.IntPtr(300)}
//	if err := calculator.Finalize("openai", "gpt-4o", usage); err != nil {
//		log.Warn("cost calculation failed", "error", err)
//	}
//	fmt.Printf("cost: $%.4f\n", usage.TotalCost())
//
// Finalize runs on successful and failed calls alike and tolerates partial
// usage: a cost is filled only for the counters that are known.
//
// # Pricing Updates
//
// UpdatePricing swaps the pricing table under a write lock. The config
// watcher calls it when the pricing file changes on disk.
package costs
