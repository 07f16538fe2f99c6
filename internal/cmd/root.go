package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/config"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
	logger *slog.Logger
}

// NewRootCmd constructs the Cobra root command. Without a subcommand the
// root answers a single question, like ask.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "capmux [question]",
		Short:         "Ask questions answered by tools from your MCP providers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(os.Stderr, rt.cfg.LogLevel, rt.cfg.LogFormat)
			if err != nil {
				return err
			}
			rt.logger = logger
			slog.SetDefault(logger)
			return nil
		},
		RunE: rt.runAsk,
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)
	initAskFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(
		newAskCmd(rt),
		newChatCmd(rt),
		newServeCmd(rt),
		newProvidersCmd(rt),
		newProviderCmd(),
		newThreadCmd(rt),
		newConfigCmd(rt),
		newUpgradeCmd(rt),
		newManCmd(rootCmd),
	)

	// Enable completion now that we have subcommands.
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// configured fails commands that need a valid settings file.
func (rt *runtime) configured() error {
	return rt.cfgErr
}

// signalContext is cmd's context, cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
