package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"charm.land/fantasy"
)

const (
	apiAnthropic = "anthropic"
	apiGoogle    = "google"
	apiOpenAI    = "openai"
	apiAzure     = "azure"
	apiAzureAD   = "azure-ad"
)

// Config is the resolved model configuration of a Fantasy service.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int

	Model       string
	Fallback    string
	User        string
	MaxTokens   int64
	Temperature float64
	TopP        float64
	TopK        int64
	MaxRetries  int
}

// Fantasy is a Service backed by charm.land/fantasy.
type Fantasy struct {
	provider fantasy.Provider
	config   Config
	logger   *slog.Logger
}

var _ Service = &Fantasy{}

// New creates a Fantasy-backed reasoning service.
func New(cfg Config, logger *slog.Logger) (*Fantasy, error) {
	if cfg.API == "" {
		return nil, fmt.Errorf("missing reasoning provider configuration")
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fantasy{
		provider: provider,
		config:   cfg,
		logger:   logger.With("component", "reasoning", "api", cfg.API),
	}, nil
}

// Complete implements Service. Retryable provider errors are retried up to
// MaxRetries times; a missing model switches to the fallback once.
func (f *Fantasy) Complete(ctx context.Context, req Request) (Reply, error) {
	model := f.config.Model
	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
				return Reply{}, err
			}
		}

		reply, err := f.complete(ctx, model, req)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}

		action := actionFor(err, f.config.API, model, f.config.Fallback)
		if !action.Retry {
			return Reply{}, action.Err
		}
		if action.Model != "" {
			model = action.Model
		}
		lastErr = action.Err
		f.logger.Warn("retrying model call", "attempt", attempt+1, "model", model, "err", err)
	}
	return Reply{}, lastErr
}

func (f *Fantasy) complete(ctx context.Context, model string, req Request) (Reply, error) {
	lm, err := f.provider.LanguageModel(ctx, model)
	if err != nil {
		return Reply{}, fmt.Errorf("fantasy language model: %w", err)
	}
	seq, err := lm.Stream(ctx, f.buildCall(req))
	if err != nil {
		return Reply{}, fmt.Errorf("fantasy stream: %w", err)
	}
	reply, err := collect(seq)
	for _, w := range reply.Warnings {
		f.logger.Debug("provider warning", "warning", w)
	}
	return reply, err
}

func (f *Fantasy) buildCall(req Request) fantasy.Call {
	temperature := f.config.Temperature
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(req.History),
		Temperature:     &temperature,
		Tools:           toFantasyTools(req.Capabilities),
		ToolChoice:      toolChoiceFor(req.Capabilities),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	if f.config.MaxTokens > 0 {
		maxTokens := f.config.MaxTokens
		call.MaxOutputTokens = &maxTokens
	}
	if f.config.TopP > 0 {
		topP := f.config.TopP
		call.TopP = &topP
	}
	if f.config.TopK > 0 {
		topK := f.config.TopK
		call.TopK = &topK
	}
	applyProviderOptions(&call, f.config.API, f.config)
	return call
}

// collect folds a model stream into a Reply.
func collect[S ~func(func(fantasy.StreamPart) bool)](seq S) (Reply, error) {
	var (
		text  strings.Builder
		reply Reply
		seen  = map[string]struct{}{}
		warns = map[string]struct{}{}
	)
	for part := range seq {
		switch part.Type {
		case fantasy.StreamPartTypeTextDelta:
			text.WriteString(part.Delta)
		case fantasy.StreamPartTypeToolCall:
			if part.ProviderExecuted {
				continue
			}
			if _, exists := seen[part.ID]; exists {
				continue
			}
			seen[part.ID] = struct{}{}
			reply.Calls = append(reply.Calls, toolCall(part))
		case fantasy.StreamPartTypeError:
			if part.Error != nil {
				reply.Text = text.String()
				return reply, part.Error
			}
		case fantasy.StreamPartTypeWarnings:
			for _, warning := range part.Warnings {
				msg := warningText(warning)
				key := string(warning.Type) + ":" + msg
				if _, exists := warns[key]; exists {
					continue
				}
				warns[key] = struct{}{}
				reply.Warnings = append(reply.Warnings, msg)
			}
		case fantasy.StreamPartTypeTextStart,
			fantasy.StreamPartTypeTextEnd,
			fantasy.StreamPartTypeReasoningStart,
			fantasy.StreamPartTypeReasoningDelta,
			fantasy.StreamPartTypeReasoningEnd,
			fantasy.StreamPartTypeToolInputStart,
			fantasy.StreamPartTypeToolInputDelta,
			fantasy.StreamPartTypeToolInputEnd,
			fantasy.StreamPartTypeToolResult,
			fantasy.StreamPartTypeSource,
			fantasy.StreamPartTypeFinish:
			// no-op
		}
	}
	reply.Text = text.String()
	return reply, nil
}

func warningText(warning fantasy.CallWarning) string {
	text := strings.TrimSpace(warning.Message)
	if text == "" {
		text = strings.TrimSpace(warning.Details)
	}
	if text == "" && warning.Setting != "" {
		text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
	}
	if text == "" {
		text = "provider warning"
	}
	return text
}

func retryDelay(attempt int) time.Duration {
	delay := 500 * time.Millisecond << (attempt - 1)
	return min(delay, 8*time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
