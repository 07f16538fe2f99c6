package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	// Settings stay editable even when they fail to parse.
	edit := func(*cobra.Command, []string) error { return editSettings(&rt.cfg) }

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		Args:  cobra.NoArgs,
		RunE:  edit,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "edit",
			Short: "Open settings in $EDITOR",
			Args:  cobra.NoArgs,
			RunE:  edit,
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Back up the settings file and restore the defaults",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return resetSettings(&rt.cfg)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), rt.cfg.SettingsPath)
				return nil
			},
		},
	)
	return cmd
}

func editSettings(cfg *config.Config) error {
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return err
	}

	c, err := editor.Cmd(filepath.Base(os.Args[0]), cfg.SettingsPath)
	if err != nil {
		return errs.Wrap(err, "Could not edit your settings file.")
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Wrapf(err, "Missing %s.", present.StderrStyles().InlineCode.Render("$EDITOR"))
	}

	if !cfg.Quiet {
		present.PrintAction(os.Stderr, "wrote", cfg.SettingsPath)
	}
	return nil
}

// resetSettings moves the settings file to a .bak sibling and writes the
// default template in its place.
func resetSettings(cfg *config.Config) error {
	backup := cfg.SettingsPath + ".bak"
	if err := copyFile(cfg.SettingsPath, backup); err != nil {
		return errs.Wrap(err, "Couldn't back up the settings file.")
	}
	if err := os.Remove(cfg.SettingsPath); err != nil {
		return errs.Wrap(err, "Couldn't remove the settings file.")
	}
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return err
	}

	if !cfg.Quiet {
		present.PrintAction(os.Stderr, "reset", "Settings restored to defaults.")
		fmt.Fprintf(os.Stderr, "\n  %s %s\n\n",
			present.StderrStyles().Comment.Render("Your old settings have been saved to:"),
			present.StderrStyles().Link.Render(backup),
		)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
