package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
)

// FromConfig resolves the configured model and builds its service.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Fantasy, error) {
	api, mod, err := ResolveModel(cfg)
	if err != nil {
		return nil, err
	}
	rcfg, err := providerConfig(ctx, mod, api)
	if err != nil {
		return nil, err
	}
	if err := ApplyProxyConfig(cfg.HTTPProxy, &rcfg); err != nil {
		return nil, err
	}
	rcfg.Model = mod.Name
	rcfg.Fallback = mod.Fallback
	rcfg.MaxTokens = cfg.MaxTokens
	rcfg.Temperature = cfg.Temperature
	rcfg.TopP = cfg.TopP
	rcfg.TopK = cfg.TopK
	rcfg.MaxRetries = cfg.MaxRetries

	svc, err := New(rcfg, logger)
	if err != nil {
		return nil, errs.Wrap(err, "Could not set up the reasoning service.")
	}
	return svc, nil
}

// ResolveModel finds the configured model, matching names and aliases.
func ResolveModel(cfg *config.Config) (config.API, config.Model, error) {
	for _, api := range cfg.APIs {
		if api.Name != cfg.API && cfg.API != "" {
			continue
		}
		name := cfg.Model
		for key, mod := range api.Models {
			if key == name || slices.Contains(mod.Aliases, name) {
				name = key
				break
			}
		}
		if mod, ok := api.Models[name]; ok {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
		if cfg.API != "" {
			available := make([]string, 0, len(api.Models))
			for key := range api.Models {
				available = append(available, key)
			}
			slices.Sort(available)
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", cfg.API, cfg.Model),
			}
		}
	}

	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", cfg.Model),
		Err:    errs.UserErrorf("Please specify an API endpoint with --api or configure the model in the settings: capmux config edit"),
	}
}

type keySource struct {
	env    string
	docs   string
	reason string
}

var keySources = map[string]keySource{
	"openrouter": {"OPENROUTER_API_KEY", "https://openrouter.ai/keys", "OpenRouter authentication failed"},
	"vercel":     {"VERCEL_API_KEY", "https://vercel.com/dashboard/tokens", "Vercel AI Gateway authentication failed"},
	"cohere":     {"COHERE_API_KEY", "https://dashboard.cohere.com/api-keys", "Cohere authentication failed"},
	apiAzure:     {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	apiAzureAD:   {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", "Azure authentication failed"},
	apiAnthropic: {"ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys", "Anthropic authentication failed"},
	apiGoogle:    {"GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey", "Google authentication failed"},
	apiOpenAI:    {"OPENAI_API_KEY", "https://platform.openai.com/account/api-keys", "OpenAI authentication failed"},
}

func providerConfig(ctx context.Context, mod config.Model, api config.API) (Config, error) {
	cfg := Config{API: mod.API, BaseURL: api.BaseURL}
	switch mod.API {
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		return cfg, nil
	case "bedrock":
		key, err := optionalKey(ctx, api)
		if err != nil {
			return Config{}, errs.Error{Err: err, Reason: "Bedrock authentication failed"}
		}
		cfg.APIKey = key
		return cfg, nil
	case apiAzureAD:
		cfg.API = apiAzure
	case apiGoogle:
		cfg.ThinkingBudget = mod.ThinkingBudget
	}

	src, ok := keySources[mod.API]
	if !ok {
		src = keySources[apiOpenAI]
	}
	key, err := ensureKey(ctx, api, src.env, src.docs)
	if err != nil {
		return Config{}, errs.Error{Err: err, Reason: src.reason}
	}
	cfg.APIKey = key
	if mod.API == apiAzure || mod.API == apiAzureAD {
		cfg.User = api.User
	}
	return cfg, nil
}

// ApplyProxyConfig routes the provider's HTTP client through an HTTP proxy.
func ApplyProxyConfig(httpProxy string, cfg *Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	cfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update capmux.yml through capmux config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		out, err := RunKeyCmd(ctx, api.APIKeyCmd)
		if err != nil {
			return "", err
		}
		key = out
	}
	return key, nil
}

// RunKeyCmd runs a configured api-key-cmd and returns its trimmed output.
func RunKeyCmd(ctx context.Context, cmdline string) (string, error) {
	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
	}
	if len(args) == 0 {
		return "", errs.Error{Reason: "api-key-cmd is empty"}
	}
	// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
	}
	return strings.TrimSpace(string(out)), nil
}
