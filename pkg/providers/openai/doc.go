// Package openai implements the Chat Completions adapter.
//
// One adapter serves every vendor that speaks the OpenAI dialect. The
// provider type selects the variant:
//
//   - openai: api.openai.com, bearer auth, max_completion_tokens
//   - azure_openai: deployment URL, api-key header, api-version query
//   - fireworks, groq: base URL swap; inline <think> sections for reasoning models
//   - mistral: no strict tool flag, no stream_options
//
// # Basic Usage
//
//	adapter, err := openai.NewAdapter(providers.ProviderConfig{
//	    Name:    "openai",
//	    Type:    providers.TypeOpenAI,
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The adapter only translates. The completion engine sends the request and
// drives the stream.
//
// # Responses
//
// Responses and stream chunks are decoded with the go-openai types. Usage
// maps cached prompt tokens and reasoning tokens; reasoning text comes from
// reasoning_content when the vendor provides it.
//
// # Error Handling
//
// ClassifyError refines the generic status table from the error body:
//
//   - context_length_exceeded -> max_tokens_exceeded
//   - content_filter, content_policy_violation -> content_moderation
//   - invalid_api_key -> invalid_provider_config
//   - model_not_found, "does not exist" -> model_not_supported
//   - a rejected response_format -> structured_generation_error
package openai
