package config

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/capmux/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// DefaultSystem is the routing instruction used when no system message is
// configured.
const DefaultSystem = `You are a citizen-government assistant. For every user inquiry:
1) Call the classification function to get back a single department label.
2) If that label is not 'Other', call the office information function with that label.
Return only the final office information text or a brief apology if the label was 'Other'.`

// DefaultInstructions are appended to every run created by the run manager.
const DefaultInstructions = "Please address the user as Jane Doe. The user has a premium account."

// Model represents the LLM model used for reasoning calls.
type Model struct {
	Name           string
	API            string
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs is a type alias to allow custom YAML decoding.
type APIs []API

// UnmarshalYAML implements sorted API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// Provider types.
const (
	ProviderStdio   = "stdio"
	ProviderSSE     = "sse"
	ProviderHTTP    = "http"
	ProviderBuiltin = "builtin"
)

// ProviderConfig describes how to launch or reach one capability provider.
type ProviderConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Runs configures the run lifecycle manager and the hosted agents service.
type Runs struct {
	AgentID         string        `yaml:"agent-id" env:"AGENT_ID"`
	Instructions    string        `yaml:"instructions" env:"INSTRUCTIONS"`
	PollInterval    time.Duration `yaml:"poll-interval" env:"POLL_INTERVAL"`
	MaxPollInterval time.Duration `yaml:"max-poll-interval" env:"MAX_POLL_INTERVAL"`
	PollMultiplier  float64       `yaml:"poll-multiplier" env:"POLL_MULTIPLIER"`
	MaxWait         time.Duration `yaml:"max-wait" env:"MAX_WAIT"`
	Endpoint        string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKeyEnv       string        `yaml:"api-key-env" env:"API_KEY_ENV"`
	APIKeyCmd       string        `yaml:"api-key-cmd" env:"API_KEY_CMD"`
	APIVersion      string        `yaml:"api-version" env:"API_VERSION"`
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API            string        `yaml:"default-api" env:"API"`
	Model          string        `yaml:"default-model" env:"MODEL"`
	APIs           APIs          `yaml:"apis"`
	HTTPProxy      string        `yaml:"http-proxy" env:"HTTP_PROXY"`
	MaxRetries     int           `yaml:"max-retries" env:"MAX_RETRIES"`
	MaxTokens      int64         `yaml:"max-tokens" env:"MAX_TOKENS"`
	Temperature    float64       `yaml:"temp" env:"TEMP"`
	TopP           float64       `yaml:"topp" env:"TOPP"`
	TopK           int64         `yaml:"topk" env:"TOPK"`
	System         string        `yaml:"system" env:"SYSTEM"`
	MaxIterations  int           `yaml:"max-iterations" env:"MAX_ITERATIONS"`
	RequestTimeout time.Duration `yaml:"request-timeout" env:"REQUEST_TIMEOUT"`
	WordWrap       int           `yaml:"word-wrap" env:"WORD_WRAP"`
	Listen         string        `yaml:"listen" env:"LISTEN"`
	StaticDir      string        `yaml:"static-dir" env:"STATIC_DIR"`
	ThreadIdleTTL  time.Duration `yaml:"thread-idle-ttl" env:"THREAD_IDLE_TTL"`
	MaxThreads     int           `yaml:"max-threads" env:"MAX_THREADS"`
	LogLevel       string        `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat      string        `yaml:"log-format" env:"LOG_FORMAT"`

	Providers            map[string]ProviderConfig `yaml:"providers"`
	ProviderDisable      []string                  `yaml:"provider-disable" env:"PROVIDER_DISABLE"`
	ProviderTimeout      time.Duration             `yaml:"provider-timeout" env:"PROVIDER_TIMEOUT"`
	ProviderNoInheritEnv bool                      `yaml:"provider-no-inherit-env" env:"PROVIDER_NO_INHERIT_ENV"`

	Runs Runs `yaml:"runs" envPrefix:"RUNS_"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	SettingsPath string
	Quiet        bool
	Raw          bool
	Async        bool
	Thread       string
	Copy         bool
	Theme        string
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// IsEnabled reports whether the named provider is enabled.
func (c *Config) IsEnabled(name string) bool {
	return !slices.Contains(c.ProviderDisable, "*") &&
		!slices.Contains(c.ProviderDisable, name)
}

// EnabledProviders iterates enabled providers in stable order.
func (c *Config) EnabledProviders() iter.Seq2[string, ProviderConfig] {
	return func(yield func(string, ProviderConfig) bool) {
		names := slices.Collect(maps.Keys(c.Providers))
		slices.Sort(names)
		for _, name := range names {
			if !c.IsEnabled(name) {
				continue
			}
			if !yield(name, c.Providers[name]) {
				return
			}
		}
	}
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return Load(filepath.Join(home, ".config", "capmux", "capmux.yml"))
}

// Load reads the settings file at path, creating it first when missing.
func Load(path string) (Config, error) {
	var c Config
	c.SettingsPath = path

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create configuration directory."}
	}
	if err := WriteConfigFile(path); err != nil {
		return c, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "CAPMUX_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.WordWrap == 0 {
		c.WordWrap = def.WordWrap
	}
	if c.System == "" {
		c.System = def.System
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = def.ProviderTimeout
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ThreadIdleTTL == 0 {
		c.ThreadIdleTTL = def.ThreadIdleTTL
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = def.MaxThreads
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.Runs.Instructions == "" {
		c.Runs.Instructions = def.Runs.Instructions
	}
	if c.Runs.PollInterval == 0 {
		c.Runs.PollInterval = def.Runs.PollInterval
	}
	if c.Runs.MaxPollInterval < c.Runs.PollInterval {
		c.Runs.MaxPollInterval = max(def.Runs.MaxPollInterval, c.Runs.PollInterval)
	}
	if c.Runs.PollMultiplier < 1 {
		c.Runs.PollMultiplier = def.Runs.PollMultiplier
	}
	if c.Runs.MaxWait == 0 {
		c.Runs.MaxWait = def.Runs.MaxWait
	}
	if c.Runs.APIVersion == "" {
		c.Runs.APIVersion = def.Runs.APIVersion
	}
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			MaxRetries:      3,
			System:          DefaultSystem,
			MaxIterations:   8,
			RequestTimeout:  60 * time.Second,
			WordWrap:        80,
			Listen:          "127.0.0.1:8080",
			ThreadIdleTTL:   30 * time.Minute,
			MaxThreads:      1000,
			LogLevel:        "warn",
			LogFormat:       "text",
			ProviderTimeout: 15 * time.Second,
			Runs: Runs{
				Instructions:    DefaultInstructions,
				PollInterval:    500 * time.Millisecond,
				MaxPollInterval: 5 * time.Second,
				PollMultiplier:  1,
				MaxWait:         2 * time.Minute,
				APIVersion:      "2025-05-01",
			},
		},
	}
}
