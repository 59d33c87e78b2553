// Package anthropic implements the Anthropic Messages API adapter.
//
// # Request Transformation
//
//   - System messages are hoisted into the top-level system field
//   - max_tokens is required; when unset it defaults to the model's output
//     ceiling, or 4096 for unknown models
//   - Tool results become tool_result blocks inside one user turn
//   - Images and PDFs become image and document blocks
//
// # Streaming
//
// Stream events are decoded with the anthropic-sdk-go event union:
// content_block_start opens text and tool_use blocks, content_block_delta
// carries text_delta, input_json_delta and thinking_delta, and
// message_delta reports the stop reason and output usage. An error event
// mid-stream is classified like an error response.
//
// # Error Handling
//
//   - overloaded_error -> server_overloaded
//   - "prompt is too long" -> max_tokens_exceeded
//   - rate_limit_error -> rate_limit
//   - authentication_error, permission_error -> invalid_provider_config
package anthropic
