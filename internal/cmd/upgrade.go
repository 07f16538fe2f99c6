package cmd

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
)

const installPkg = "github.com/dotcommander/capmux@latest"

func newUpgradeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Install the latest release with go install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gobin, err := exec.LookPath("go")
			if err != nil {
				return errs.Wrap(err, "The go toolchain is not in your PATH.")
			}
			if !rt.cfg.Quiet {
				present.PrintAction(os.Stderr, "upgrade", rt.build.Version+" → "+installPkg)
			}

			install := exec.CommandContext(cmd.Context(), gobin, "install", installPkg)
			install.Stdout = os.Stdout
			install.Stderr = os.Stderr
			if err := install.Run(); err != nil {
				return errs.Wrap(err, "go install failed.")
			}
			if !rt.cfg.Quiet {
				present.PrintAction(os.Stderr, "done", "Upgrade complete.")
			}
			return nil
		},
	}
}
