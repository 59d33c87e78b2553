package runs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"mercator-hq/relay/pkg/llm"
)

// inputDomainKey separates run input hashes from any other BLAKE3 use.
// Changing it invalidates every cached run.
var inputDomainKey = [32]byte{
	'r', 'e', 'l', 'a', 'y', '.', 'r', 'u', 'n', 's', '.', 'i', 'n', 'p', 'u', 't',
}

// canonicalInput is everything that determines a completion. Tenant and
// routing details are excluded so equal inputs share a cache entry.
type canonicalInput struct {
	VersionID            string         `json:"version_id"`
	Model                string         `json:"model"`
	Messages             []llm.Message  `json:"messages"`
	Temperature          float64        `json:"temperature"`
	MaxTokens            *int           `json:"max_tokens,omitempty"`
	OutputSchema         map[string]any `json:"output_schema,omitempty"`
	EnabledTools         []llm.Tool     `json:"enabled_tools,omitempty"`
	StructuredGeneration bool           `json:"structured_generation,omitempty"`
}

// InputHash returns the hex BLAKE3 keyed hash of the request's canonical
// JSON input. encoding/json sorts map keys, so equal inputs hash equally.
func InputHash(req Request) (string, error) {
	data, err := json.Marshal(canonicalInput{
		VersionID:            req.VersionID,
		Model:                req.Model,
		Messages:             req.Messages,
		Temperature:          req.Options.Temperature,
		MaxTokens:            req.Options.MaxTokens,
		OutputSchema:         req.Options.OutputSchema,
		EnabledTools:         req.Options.EnabledTools,
		StructuredGeneration: req.Options.StructuredGeneration,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode run input: %w", err)
	}

	hasher, err := blake3.NewKeyed(inputDomainKey[:])
	if err != nil {
		panic("runs: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
