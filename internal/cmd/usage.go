package cmd

import (
	"fmt"
	"io"
	"strings"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/capmux/internal/present"
)

func useLine(cmd *cobra.Command) string {
	s := present.StdoutStyles()
	appName := cmd.Root().Name()
	if present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.GradientText(s.AppName, appName)
	}

	path := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name())
	_, args, _ := strings.Cut(cmd.Use, " ")
	return strings.TrimSpace(fmt.Sprintf(
		"%s%s %s",
		appName,
		path,
		s.CliArgs.Render(strings.TrimSpace("[OPTIONS] "+args)),
	))
}

func usageFunc(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	s := present.StdoutStyles()
	fmt.Fprintf(w, "Usage:\n  %s\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, "\nCommands:")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			fmt.Fprintf(w, "  %-20s %s\n", s.Flag.Render(sub.Name()), s.FlagDesc.Render(sub.Short))
		}
	}

	if cmd.HasAvailableFlags() {
		fmt.Fprintln(w, "\nOptions:")
		printFlags(w, s, cmd.Flags())
	}
	if cmd.HasAvailableInheritedFlags() {
		fmt.Fprintln(w, "\nGlobal options:")
		printFlags(w, s, cmd.InheritedFlags())
	}

	if cmd == cmd.Root() && cmd.HasExample() {
		fmt.Fprintf(w,
			"\nExample:\n  %s\n  %s\n",
			s.Comment.Render("# "+cmd.Example),
			cheapHighlighting(s, examples[cmd.Example]),
		)
	}
	return nil
}

func printFlags(w io.Writer, s present.Styles, flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Fprintf(w,
				"  %-44s %s\n",
				s.Flag.Render("--"+f.Name),
				s.FlagDesc.Render(f.Usage),
			)
			return
		}
		fmt.Fprintf(w,
			"  %s%s %-40s %s\n",
			s.Flag.Render("-"+f.Shorthand),
			s.FlagComma,
			s.Flag.Render("--"+f.Name),
			s.FlagDesc.Render(f.Usage),
		)
	})
}

func newManCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:                   "man",
		Short:                 "Generates manpages",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Hidden:                true,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := mcobra.NewManPage(1, root)
			if err != nil {
				return fmt.Errorf("build man page: %w", err)
			}
			if _, err := fmt.Fprint(cmd.OutOrStdout(), page.Build(roff.NewDocument())); err != nil {
				return fmt.Errorf("write man page: %w", err)
			}
			return nil
		},
	}
}
