package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/demo"
	"github.com/dotcommander/capmux/internal/present"
)

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	desc := func(name string) string { return present.StdoutStyles().FlagDesc.Render(helpText[name]) }

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, desc("model"))
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, desc("api"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, desc("http-proxy"))
	flags.StringVarP(&cfg.System, "system", "s", cfg.System, desc("system"))
	flags.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, desc("max-iterations"))
	flags.Var(newDurationFlag(cfg.RequestTimeout, &cfg.RequestTimeout), "request-timeout", desc("request-timeout"))
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, desc("max-retries"))
	flags.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, desc("max-tokens"))
	flags.Float64Var(&cfg.Temperature, "temp", cfg.Temperature, desc("temp"))
	flags.Float64Var(&cfg.TopP, "topp", cfg.TopP, desc("topp"))
	flags.Int64Var(&cfg.TopK, "topk", cfg.TopK, desc("topk"))
	flags.BoolVarP(&cfg.Async, "async", "A", cfg.Async, desc("async"))
	flags.StringVar(&cfg.Runs.AgentID, "agent", cfg.Runs.AgentID, desc("agent"))
	flags.Var(newDurationFlag(cfg.Runs.MaxWait, &cfg.Runs.MaxWait), "max-wait", desc("max-wait"))
	flags.StringArrayVar(&cfg.ProviderDisable, "provider-disable", cfg.ProviderDisable, desc("provider-disable"))
	flags.Var(newDurationFlag(cfg.ProviderTimeout, &cfg.ProviderTimeout), "provider-timeout", desc("provider-timeout"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, desc("word-wrap"))
	flags.BoolVarP(&cfg.Raw, "raw", "r", cfg.Raw, desc("raw"))
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, desc("quiet"))
	flags.StringVar(&cfg.Theme, "theme", "charm", desc("theme"))
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, desc("log-level"))
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, desc("log-format"))
	flags.SortFlags = false

	_ = cmd.RegisterFlagCompletionFunc("provider-disable", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		names := demo.Names()
		for name := range cfg.Providers {
			names = append(names, name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("log-level", cobra.FixedCompletions(
		[]string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp,
	))
	_ = cmd.RegisterFlagCompletionFunc("log-format", cobra.FixedCompletions(
		[]string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp,
	))
	_ = cmd.RegisterFlagCompletionFunc("theme", cobra.FixedCompletions(
		[]string{"charm", "dracula", "catppuccin", "base16"}, cobra.ShellCompDirectiveNoFileComp,
	))
}

// initAskFlags adds the flags shared by commands answering one question.
func initAskFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Thread, "thread", "t", cfg.Thread, present.StdoutStyles().FlagDesc.Render(helpText["thread"]))
	flags.BoolVarP(&cfg.Copy, "copy", "c", cfg.Copy, present.StdoutStyles().FlagDesc.Render(helpText["copy"]))
	flags.SortFlags = false
}
