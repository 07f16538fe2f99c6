//go:build capmux_small

package reasoning

import (
	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

func applyProviderOptions(call *fantasy.Call, _ string, cfg Config) {
	if cfg.User == "" {
		return
	}
	user := cfg.User
	call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
}
