package cmd

import (
	"os"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewgate/internal/llm"
)

// anthropicAPIKey prefers config over the SDK's ANTHROPIC_API_KEY variable.
func anthropicAPIKey() string {
	if key := viper.GetString("anthropic.api_key"); key != "" {
		return key
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// newLLMClient builds the client behind --ai-summary verdict notes. It
// returns nil when no API key is configured; the note is advisory, so the
// run carries on without it. anthropic.base_url routes requests through a
// gateway when CI runners have no direct egress.
func newLLMClient() *llm.Client {
	apiKey := anthropicAPIKey()
	if apiKey == "" {
		return nil
	}
	var opts []option.RequestOption
	if base := viper.GetString("anthropic.base_url"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"), opts...)
}
