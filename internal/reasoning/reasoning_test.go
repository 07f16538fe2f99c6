package reasoning

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
)

func TestToFantasyPrompt(t *testing.T) {
	call := proto.ToolCall{ID: "call_1", Function: proto.Function{Name: "classify", Arguments: []byte(`{"text":"hi"}`)}}
	failed := proto.ToolCall{ID: "call_2", Function: proto.Function{Name: "officeInfo"}, IsError: true}
	prompt := toFantasyPrompt([]proto.Message{
		{Role: proto.RoleSystem, Content: "sys"},
		{Role: proto.RoleUser, Content: "hello"},
		{Role: proto.RoleFunctionResult, Content: "Passport Services", ToolCall: &call},
		{Role: proto.RoleFunctionResult, Content: "boom", ToolCall: &failed},
		{Role: proto.RoleAssistant, Content: "done"},
		{Role: proto.RoleAssistant},
	})
	require.Len(t, prompt, 7)

	roles := make([]fantasy.MessageRole, 0, len(prompt))
	for _, msg := range prompt {
		roles = append(roles, msg.Role)
	}
	require.Equal(t, []fantasy.MessageRole{
		fantasy.MessageRoleSystem,
		fantasy.MessageRoleUser,
		fantasy.MessageRoleAssistant,
		fantasy.MessageRoleTool,
		fantasy.MessageRoleAssistant,
		fantasy.MessageRoleTool,
		fantasy.MessageRoleAssistant,
	}, roles)

	callPart, ok := fantasy.AsMessagePart[fantasy.ToolCallPart](prompt[2].Content[0])
	require.True(t, ok)
	require.Equal(t, "call_1", callPart.ToolCallID)
	require.Equal(t, "classify", callPart.ToolName)
	require.JSONEq(t, `{"text":"hi"}`, callPart.Input)

	resultPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[3].Content[0])
	require.True(t, ok)
	text, ok := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentText](resultPart.Output)
	require.True(t, ok)
	require.Equal(t, "Passport Services", text.Text)

	emptyArgs, ok := fantasy.AsMessagePart[fantasy.ToolCallPart](prompt[4].Content[0])
	require.True(t, ok)
	require.Equal(t, "{}", emptyArgs.Input)

	errPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[5].Content[0])
	require.True(t, ok)
	errOutput, ok := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentError](errPart.Output)
	require.True(t, ok)
	require.EqualError(t, errOutput.Error, "boom")
}

func TestToFantasyTools(t *testing.T) {
	tools := toFantasyTools([]capability.Descriptor{{
		Name:        "classify",
		Description: "label an inquiry",
		Params:      []capability.Param{{Name: "text", Type: capability.String, Required: true}},
	}})
	require.Len(t, tools, 1)
	fn, ok := tools[0].(fantasy.FunctionTool)
	require.True(t, ok)
	require.Equal(t, "classify", fn.Name)
	require.Equal(t, "label an inquiry", fn.Description)
	require.Equal(t, "object", fn.InputSchema["type"])
	require.Equal(t, []string{"text"}, fn.InputSchema["required"])

	require.Nil(t, toolChoiceFor(nil))
	require.Equal(t, fantasy.ToolChoiceAuto, *toolChoiceFor([]capability.Descriptor{{Name: "x"}}))
}

func TestCollect(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		reply, err := collect(parts(
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextStart},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "Hello "},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "there"},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeFinish},
		))
		require.NoError(t, err)
		require.Equal(t, "Hello there", reply.Text)
		require.False(t, reply.WantsFunction())
	})

	t.Run("tool calls", func(t *testing.T) {
		reply, err := collect(parts(
			fantasy.StreamPart{Type: fantasy.StreamPartTypeToolCall, ID: "tc_1", ToolCallName: "classify", ToolCallInput: `{"text":"x"}`},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeToolCall, ID: "tc_1", ToolCallName: "classify", ToolCallInput: `{"text":"x"}`},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeToolCall, ID: "tc_2", ToolCallName: "search", ProviderExecuted: true},
		))
		require.NoError(t, err)
		require.True(t, reply.WantsFunction())
		require.Len(t, reply.Calls, 1)
		require.Equal(t, "tc_1", reply.Calls[0].ID)
		require.Equal(t, "classify", reply.Calls[0].Function.Name)
		require.JSONEq(t, `{"text":"x"}`, string(reply.Calls[0].Function.Arguments))
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		reply, err := collect(parts(
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "partial"},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeError, Error: boom},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "never"},
		))
		require.ErrorIs(t, err, boom)
		require.Equal(t, "partial", reply.Text)
	})

	t.Run("warnings deduplicated", func(t *testing.T) {
		reply, err := collect(parts(fantasy.StreamPart{
			Type: fantasy.StreamPartTypeWarnings,
			Warnings: []fantasy.CallWarning{
				{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
				{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
				{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_p"},
			},
		}))
		require.NoError(t, err)
		require.Equal(t, []string{"unsupported setting: top_k", "unsupported setting: top_p"}, reply.Warnings)
	})
}

func TestBuildCall(t *testing.T) {
	t.Run("deterministic defaults", func(t *testing.T) {
		f := &Fantasy{config: Config{API: apiOpenAI}}
		call := f.buildCall(Request{History: []proto.Message{{Role: proto.RoleUser, Content: "hi"}}})
		require.NotNil(t, call.Temperature)
		require.Zero(t, *call.Temperature)
		require.Nil(t, call.TopP)
		require.Nil(t, call.TopK)
		require.Nil(t, call.MaxOutputTokens)
		require.Nil(t, call.ToolChoice)
		require.Empty(t, call.ProviderOptions)
	})

	t.Run("sampling settings", func(t *testing.T) {
		f := &Fantasy{config: Config{API: apiOpenAI, TopP: 0.9, TopK: 40, MaxTokens: 256}}
		call := f.buildCall(Request{Capabilities: []capability.Descriptor{{Name: "classify"}}})
		require.InDelta(t, 0.9, *call.TopP, 0.0001)
		require.EqualValues(t, 40, *call.TopK)
		require.EqualValues(t, 256, *call.MaxOutputTokens)
		require.Len(t, call.Tools, 1)
		require.NotNil(t, call.ToolChoice)
	})

	t.Run("google thinking budget", func(t *testing.T) {
		f := &Fantasy{config: Config{API: apiGoogle, ThinkingBudget: 256}}
		call := f.buildCall(Request{})
		opts, ok := call.ProviderOptions[fgoogle.Name].(*fgoogle.ProviderOptions)
		require.True(t, ok)
		require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)
	})

	for name, tc := range map[string]struct {
		api    string
		key    string
		expect bool
	}{
		"openai user":       {apiOpenAI, fopenai.Name, true},
		"azure user":        {apiAzure, fopenai.Name, true},
		"compat user":       {"deepseek", fopenaicompat.Name, true},
		"google no user":    {apiGoogle, fopenai.Name, false},
		"anthropic no user": {apiAnthropic, fopenaicompat.Name, false},
	} {
		t.Run(name, func(t *testing.T) {
			f := &Fantasy{config: Config{API: tc.api, User: "jane"}}
			call := f.buildCall(Request{})
			_, ok := call.ProviderOptions[tc.key]
			require.Equal(t, tc.expect, ok)
		})
	}
}

func TestNewRouting(t *testing.T) {
	for name, cfg := range map[string]Config{
		"openai":     {API: apiOpenAI, APIKey: "token"},
		"anthropic":  {API: apiAnthropic, APIKey: "token"},
		"azure-ad":   {API: apiAzureAD, APIKey: "token", BaseURL: "https://example.openai.azure.com"},
		"openrouter": {API: "openrouter", APIKey: "token"},
		"vercel":     {API: "vercel", APIKey: "token"},
		"ollama":     {API: "ollama", BaseURL: "http://localhost:11434/v1"},
		"compat":     {API: "deepseek", BaseURL: "https://api.deepseek.com"},
	} {
		t.Run(name, func(t *testing.T) {
			svc, err := New(cfg, nil)
			require.NoError(t, err)
			require.NotNil(t, svc)
		})
	}

	t.Run("missing api", func(t *testing.T) {
		svc, err := New(Config{}, nil)
		require.Error(t, err)
		require.Nil(t, svc)
	})
}

func TestActionFor(t *testing.T) {
	for name, tc := range map[string]struct {
		err      error
		fallback string
		retry    bool
		model    string
	}{
		"plain error":         {err: errors.New("dial tcp: refused")},
		"rate limited":        {err: &fantasy.ProviderError{StatusCode: http.StatusTooManyRequests}, retry: true},
		"server error":        {err: &fantasy.ProviderError{StatusCode: http.StatusInternalServerError}, retry: true},
		"bad request":         {err: &fantasy.ProviderError{StatusCode: http.StatusBadRequest}},
		"missing model":       {err: &fantasy.ProviderError{StatusCode: http.StatusNotFound}},
		"missing w/ fallback": {err: &fantasy.ProviderError{StatusCode: http.StatusNotFound}, fallback: "gpt-4.1-nano", retry: true, model: "gpt-4.1-nano"},
		"fallback is current": {err: &fantasy.ProviderError{StatusCode: http.StatusNotFound}, fallback: "gpt-4.1-mini"},
	} {
		t.Run(name, func(t *testing.T) {
			got := actionFor(tc.err, apiOpenAI, "gpt-4.1-mini", tc.fallback)
			require.Equal(t, tc.retry, got.Retry)
			require.Equal(t, tc.model, got.Model)
			require.NotEmpty(t, got.Err.ReasonText())
			require.ErrorIs(t, got.Err, tc.err)
		})
	}
}

func TestResolveModel(t *testing.T) {
	cfg := &config.Config{Settings: config.Settings{
		APIs: config.APIs{
			{Name: "openai", Models: map[string]config.Model{"gpt-4.1-mini": {Aliases: []string{"mini"}}}},
			{Name: "ollama", Models: map[string]config.Model{"llama3.2": {}}},
		},
	}}

	for name, tc := range map[string]struct {
		api, model string
		expectAPI  string
		expectName string
		fails      bool
	}{
		"by name":       {model: "llama3.2", expectAPI: "ollama", expectName: "llama3.2"},
		"by alias":      {model: "mini", expectAPI: "openai", expectName: "gpt-4.1-mini"},
		"pinned api":    {api: "openai", model: "gpt-4.1-mini", expectAPI: "openai", expectName: "gpt-4.1-mini"},
		"wrong api":     {api: "openai", model: "llama3.2", fails: true},
		"unknown model": {model: "gpt-9", fails: true},
	} {
		t.Run(name, func(t *testing.T) {
			c := *cfg
			c.API = tc.api
			c.Model = tc.model
			_, mod, err := ResolveModel(&c)
			if tc.fails {
				var uerr errs.Error
				require.ErrorAs(t, err, &uerr)
				require.NotEmpty(t, uerr.ReasonText())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectAPI, mod.API)
			require.Equal(t, tc.expectName, mod.Name)
		})
	}
}

func TestProviderConfigKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit key", func(t *testing.T) {
		got, err := providerConfig(ctx, config.Model{API: apiOpenAI}, config.API{APIKey: "sk-test"})
		require.NoError(t, err)
		require.Equal(t, "sk-test", got.APIKey)
	})

	t.Run("key env", func(t *testing.T) {
		t.Setenv("CAPMUX_TEST_KEY", "from-env")
		got, err := providerConfig(ctx, config.Model{API: apiAnthropic}, config.API{APIKeyEnv: "CAPMUX_TEST_KEY"})
		require.NoError(t, err)
		require.Equal(t, "from-env", got.APIKey)
	})

	t.Run("default env", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "google-key")
		got, err := providerConfig(ctx, config.Model{API: apiGoogle, ThinkingBudget: 128}, config.API{})
		require.NoError(t, err)
		require.Equal(t, "google-key", got.APIKey)
		require.Equal(t, 128, got.ThinkingBudget)
	})

	t.Run("key command", func(t *testing.T) {
		got, err := providerConfig(ctx, config.Model{API: "deepseek"}, config.API{APIKeyCmd: "echo  from-cmd "})
		require.NoError(t, err)
		require.Equal(t, "from-cmd", got.APIKey)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := providerConfig(ctx, config.Model{API: apiOpenAI}, config.API{})
		var uerr errs.Error
		require.ErrorAs(t, err, &uerr)
		require.Equal(t, "OpenAI authentication failed", uerr.ReasonText())
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		got, err := providerConfig(ctx, config.Model{API: "ollama"}, config.API{})
		require.NoError(t, err)
		require.Equal(t, "http://localhost:11434/v1", got.BaseURL)
	})

	t.Run("azure-ad", func(t *testing.T) {
		got, err := providerConfig(ctx, config.Model{API: apiAzureAD}, config.API{APIKey: "k", User: "jane"})
		require.NoError(t, err)
		require.Equal(t, apiAzure, got.API)
		require.Equal(t, "jane", got.User)
	})
}

func TestApplyProxyConfig(t *testing.T) {
	var cfg Config
	require.NoError(t, ApplyProxyConfig("", &cfg))
	require.Nil(t, cfg.HTTPClient)

	require.NoError(t, ApplyProxyConfig("http://127.0.0.1:8080", &cfg))
	require.NotNil(t, cfg.HTTPClient)

	require.Error(t, ApplyProxyConfig("://bad", &cfg))
}

func TestRetryDelay(t *testing.T) {
	prev := retryDelay(1)
	for attempt := 2; attempt < 10; attempt++ {
		d := retryDelay(attempt)
		require.GreaterOrEqual(t, d, prev)
		prev = d
	}
	require.Equal(t, retryDelay(9), retryDelay(20))
}

func parts(ps ...fantasy.StreamPart) func(func(fantasy.StreamPart) bool) {
	return func(yield func(fantasy.StreamPart) bool) {
		for _, p := range ps {
			if !yield(p) {
				return
			}
		}
	}
}
