package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"model":            "Default model (gpt-4o, claude-sonnet-4, ...).",
	"api":              "OpenAI compatible REST API (openai, anthropic, ollama, etc.).",
	"http-proxy":       "HTTP proxy to use for API requests.",
	"system":           "System message: raw text, a file:// path or an http(s) URL.",
	"max-iterations":   "Maximum model round trips per question before giving up.",
	"request-timeout":  "Timeout for each model request (e.g. 30s, 2m).",
	"max-retries":      "Maximum number of times to retry API calls.",
	"max-tokens":       "Maximum number of tokens in response.",
	"temp":             "Temperature (randomness) of results, from 0.0 to 2.0, -1.0 to disable.",
	"topp":             "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0, -1.0 to disable.",
	"topk":             "TopK, only sample from the top K options for each subsequent token, -1 to disable.",
	"async":            "Answer through runs that are polled until they finish.",
	"agent":            "Agent id used when creating runs on a hosted agents service.",
	"max-wait":         "How long to wait for a run to finish (e.g. 90s, 5m).",
	"provider-disable": "Disable specific providers, use * to disable all.",
	"provider-timeout": "Timeout for provider connections and calls.",
	"word-wrap":        "Wrap formatted output at specific width.",
	"raw":              "Print raw response text, without Markdown formatting.",
	"quiet":            "Quiet mode: hide the spinner and informational messages.",
	"theme":            "Theme used by interactive forms: charm, catppuccin, dracula or base16.",
	"log-level":        "Log level: debug, info, warn or error.",
	"log-format":       "Log format: text or json.",
	"thread":           "Continue an existing thread by id. Hosted async runs only.",
	"copy":             "Copy the reply to the clipboard.",
	"listen":           "Address the chat server listens on.",
	"static-dir":       "Serve static files from this directory at /.",
	"country":          "ISO country code used by the holiday provider.",
}

// durationFlag accepts day, week, month and year units on top of the
// usual time.ParseDuration ones.
type durationFlag time.Duration

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = durationFlag(v)
	return nil
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}

// flagParseError is a pflag error with the offending flag extracted, so it
// can be rendered with its own styling.
type flagParseError struct {
	err    error
	reason string
	flag   string
}

func newFlagParseError(err error) flagParseError {
	msg := err.Error()
	ferr := flagParseError{err: err, reason: msg}
	switch {
	case strings.HasPrefix(msg, "unknown flag: "):
		ferr.reason = "Flag %s is missing."
		ferr.flag = strings.TrimPrefix(msg, "unknown flag: ")
	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		ferr.reason = "Short flag %s is missing."
		ferr.flag = lastField(msg)
	case strings.HasPrefix(msg, "flag needs an argument: "):
		ferr.reason = "Flag %s needs an argument."
		ferr.flag = lastField(msg)
	case strings.HasPrefix(msg, "invalid argument "):
		ferr.reason = "Flag %s have an invalid argument."
		if _, rest, ok := strings.Cut(msg, `" for "`); ok {
			ferr.flag, _, _ = strings.Cut(rest, `" flag`)
		}
	}
	return ferr
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

func (f flagParseError) ReasonFormat() string {
	return f.reason
}

func (f flagParseError) Flag() string {
	return f.flag
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
