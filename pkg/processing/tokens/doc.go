// Package tokens counts tokens for usage that a provider did not report.
//
// Streams opened without usage reporting, and vendors that drop counts on
// error, leave LLMUsage partially filled. The estimators here fill the gap
// so that cost finalization still has something to price.
//
// Two estimators are available:
//
//   - TiktokenEstimator encodes text with a BPE encoding (cl100k_base, or
//     o200k_base for the gpt-4o and o-series families). Encodings are loaded
//     lazily on first use.
//   - SimpleEstimator divides character counts by a model-specific ratio
//     (about 4 characters per token for GPT models, 3.5 for Claude).
//
// When an encoding cannot be loaded (no network, unknown name) the tiktoken
// estimator falls back to the simple one and logs once.
//
// # Usage
//
//	estimator := tokens.NewEstimator(&cfg.Processing.Tokens)
//	n, err := estimator.EstimateMessages(messages, "gpt-4o")
package tokens
