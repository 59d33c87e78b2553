// Package gemini implements the Gemini generateContent adapter for both
// Google AI Studio and Vertex AI.
//
// # Request Transformation
//
//   - System messages become systemInstruction
//   - Assistant turns use role "model"; tool calls become functionCall parts
//   - Tool results become functionResponse parts with a "result" or "error" key
//   - Files are sent inline when they carry data, as fileData otherwise
//   - Output schemas are reduced to the OpenAPI subset responseSchema accepts
//
// # Authentication
//
// AI Studio takes the API key as a query parameter. Vertex takes a bearer
// token in the Authorization header and routes by project and region.
//
// # Streaming
//
// streamGenerateContent with alt=sse sends one complete response per frame.
// Text, thought and functionCall parts are emitted as they arrive; usage
// metadata carries running totals.
//
// # Error Handling
//
//   - RESOURCE_EXHAUSTED -> rate_limit, with RetryInfo as the back-off hint
//   - UNAUTHENTICATED, PERMISSION_DENIED -> invalid_provider_config
//   - SAFETY and related finish reasons, or a prompt block -> content_moderation
//   - MALFORMED_FUNCTION_CALL -> failed_generation
package gemini
