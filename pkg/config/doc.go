// Package config provides configuration management for Relay.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// # Providers
//
// Providers are keyed by name. Each entry is merged over the defaults of
// its type (base URL, API version) and over the common pool and retry
// defaults; fields set in the file always win:
//
//	providers:
//	  azure-east:
//	    type: azure_openai
//	    base_url: https://east.openai.azure.com
//	    api_key: ${AZURE_OPENAI_KEY}
//	    deployments:
//	      gpt-4o: gpt4o-prod
//	  openai:
//	    api_key: ${OPENAI_API_KEY}
//	    models: ["gpt-*", "o1*"]
//	routing:
//	  model_mapping:
//	    gpt-4o: [azure-east, openai]
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_PROVIDERS_OPENAI_API_KEY overrides providers.openai.api_key
//   - RELAY_PROVIDERS_AZURE_EAST_TIMEOUT overrides providers.azure-east.timeout
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Pricing Hot Reload
//
// When processing.costs.pricing_file is set, WatchPricing reloads it on
// change (debounced) and hands the new table to the cost calculator.
//
// # Singleton Pattern
//
//	if err := config.Initialize("relay.yaml"); err != nil {
//		log.Fatal(err)
//	}
//	cfg := config.GetConfig()
package config
