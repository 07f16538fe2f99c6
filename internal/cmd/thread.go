package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	timeago "github.com/caarlos0/timea.go"
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
	"github.com/dotcommander/capmux/internal/runs"
)

func newThreadCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage threads on the hosted agents service",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Create a thread and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			hosted, err := rt.hosted(ctx)
			if err != nil {
				return err
			}
			id, err := hosted.CreateThread(ctx)
			if err != nil {
				return errs.Wrap(err, "Could not create a thread.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			hosted, err := rt.hosted(ctx)
			if err != nil {
				return err
			}
			msgs, err := hosted.GetMessages(ctx, args[0])
			if err != nil {
				return errs.Wrap(err, fmt.Sprintf("Could not read thread %s.", args[0]))
			}
			writeThread(cmd.OutOrStdout(), present.StdoutStyles(), msgs)
			return nil
		},
	})

	return cmd
}

func (rt *runtime) hosted(ctx context.Context) (*runs.Hosted, error) {
	if err := rt.configured(); err != nil {
		return nil, err
	}
	if rt.cfg.Runs.Endpoint == "" {
		return nil, errs.Error{
			Reason: "No hosted agents service is configured.",
			Err:    errs.UserErrorf("Set runs.endpoint through capmux config edit."),
		}
	}
	return runs.HostedFromConfig(ctx, rt.cfg.Runs, rt.logger)
}

// writeThread prints each message under a "role · when" header.
func writeThread(w io.Writer, s present.Styles, msgs []runs.Message) {
	for i, msg := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n",
			s.Role.Render(string(msg.Role)),
			s.Timeago.Render("· "+timeago.Of(msg.CreatedAt)),
		)
		for _, item := range msg.Content {
			switch item.Kind {
			case runs.Text:
				fmt.Fprintln(w, strings.TrimRight(item.Text, "\n"))
			case runs.Image:
				fmt.Fprintln(w, s.Comment.Render("[image "+item.FileID+"]"))
			}
		}
	}
}
