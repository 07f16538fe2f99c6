// Package demo implements the built-in capability providers as MCP servers.
package demo

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// Built-in provider names.
const (
	Classifier = "classifier"
	OfficeInfo = "officeinfo"
	Todo       = "todo"
	Advice     = "advice"
	Holiday    = "holiday"
)

const version = "1.0.0"

type options struct {
	httpClient *http.Client
	adviceURL  string
	holidayURL string
	country    string
}

// Option configures a built-in provider.
type Option func(*options)

// WithHTTPClient sets the client used by the HTTP backed providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithAdviceURL overrides the advice API base URL.
func WithAdviceURL(u string) Option {
	return func(o *options) { o.adviceURL = u }
}

// WithHolidayURL overrides the public holiday API base URL.
func WithHolidayURL(u string) Option {
	return func(o *options) { o.holidayURL = u }
}

// WithCountry sets the ISO country code used for holiday lookups.
func WithCountry(code string) Option {
	return func(o *options) { o.country = code }
}

var builders = map[string]func(options) *server.MCPServer{
	Classifier: newClassifier,
	OfficeInfo: newOfficeInfo,
	Todo:       newTodo,
	Advice:     newAdvice,
	Holiday:    newHoliday,
}

// Names returns the built-in provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds the named provider. Every call returns a fresh instance with
// its own state.
func New(name string, opts ...Option) (*server.MCPServer, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in provider %q, available: %v", name, Names())
	}
	o := options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		adviceURL:  "https://api.adviceslip.com",
		holidayURL: "https://date.nager.at",
		country:    "US",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return build(o), nil
}

// ServeStdio serves the named provider over stdin/stdout until stdin closes.
func ServeStdio(name string, opts ...Option) error {
	s, err := New(name, opts...)
	if err != nil {
		return err
	}
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve %s: %w", name, err)
	}
	return nil
}
