package cmd

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/chat"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.configured(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			b, err := rt.openBackend(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			h := chat.NewHandler(chat.New(b, rt.logger),
				chat.WithStaticDir(rt.cfg.StaticDir),
				chat.WithHealth(b.health),
			)
			err = chat.Serve(ctx, rt.cfg.Listen, h, rt.logger, func(addr net.Addr) {
				if rt.cfg.Quiet {
					return
				}
				s := present.StderrStyles()
				fmt.Fprintf(os.Stderr, "%s %s\n",
					s.Comment.Render("Listening on"),
					s.Link.Render("http://"+addr.String()),
				)
			})
			if err != nil {
				return errs.Wrap(err, "The chat server stopped.")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&rt.cfg.Listen, "listen", "l", rt.cfg.Listen, present.StdoutStyles().FlagDesc.Render(helpText["listen"]))
	flags.StringVar(&rt.cfg.StaticDir, "static-dir", rt.cfg.StaticDir, present.StdoutStyles().FlagDesc.Render(helpText["static-dir"]))
	return cmd
}
