package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	xstrings "github.com/charmbracelet/x/exp/strings"
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/demo"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/registry"
)

func newProvidersCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect capability providers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.configured(); err != nil {
				return err
			}
			writeProviders(cmd.OutOrStdout(), present.StdoutStyles(), &rt.cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "Connect to enabled providers and list their capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.configured(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return rt.listTools(ctx, cmd.OutOrStdout())
		},
	})

	return cmd
}

func writeProviders(w io.Writer, s present.Styles, cfg *config.Config) {
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		pcfg := cfg.Providers[name]
		kind := pcfg.Type
		if kind == "" {
			kind = config.ProviderStdio
		}
		line := s.Provider.Render(name) + " " + s.Kind.Render("("+kind+")")
		if cfg.IsEnabled(name) {
			line += s.Timeago.Render(" enabled")
		}
		fmt.Fprintln(w, line)
	}
}

func (rt *runtime) listTools(ctx context.Context, w io.Writer) error {
	set, err := registry.Open(ctx, &rt.cfg, rt.logger)
	defer func() { _ = set.Close() }()

	writeTools(w, present.StdoutStyles(), set.Registry)
	if err == nil {
		return nil
	}
	if set.Len() == 0 {
		return err
	}

	rt.logger.Warn("some providers are unavailable", "err", err)
	ws := present.StderrStyles()
	for _, nc := range collisions(err) {
		fmt.Fprintf(os.Stderr, "%s %s was skipped, it publishes names already registered: %s.\n",
			ws.Warning.Render(proto.WarningMarker),
			ws.Provider.Render(nc.Provider),
			xstrings.EnglishJoin(nc.Names, true),
		)
	}
	return nil
}

// writeTools prints one "provider > capability (kind)" line per registered
// capability, in registry order.
func writeTools(w io.Writer, s present.Styles, reg *registry.Registry) {
	for desc := range reg.List() {
		owner, _ := reg.Owner(desc.Name)
		fmt.Fprintf(w, "%s%s %s\n",
			s.Timeago.Render(owner+" > "),
			desc.Name,
			s.Kind.Render("("+desc.Kind.String()+")"),
		)
	}
}

// collisions collects the name collisions inside a joined error tree.
func collisions(err error) []*errs.NameCollisionError {
	var found []*errs.NameCollisionError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *errs.NameCollisionError:
			found = append(found, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return found
}

func newProviderCmd() *cobra.Command {
	var country string
	cmd := &cobra.Command{
		Use:       "provider <name>",
		Short:     "Serve a built-in provider over stdio",
		Args:      cobra.ExactArgs(1),
		ValidArgs: demo.Names(),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := demo.ServeStdio(args[0], demo.WithCountry(country)); err != nil {
				return errs.Wrap(err, fmt.Sprintf("Provider %s stopped.", args[0]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "US", present.StdoutStyles().FlagDesc.Render(helpText["country"]))
	return cmd
}
