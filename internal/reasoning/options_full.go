//go:build !capmux_small

package reasoning

import (
	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

func applyProviderOptions(call *fantasy.Call, api string, cfg Config) {
	if cfg.User != "" {
		user := cfg.User
		switch api {
		case apiOpenAI, apiAzure, apiAzureAD:
			call.ProviderOptions[fopenai.Name] = &fopenai.ProviderOptions{User: &user}
		case apiAnthropic, apiGoogle, "openrouter", "vercel", "bedrock":
			// no-op
		default:
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if api == apiGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
