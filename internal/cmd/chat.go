package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/chat"
	"github.com/dotcommander/capmux/internal/present"
)

func newChatCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long:  "Read questions line by line and answer each one on the same thread. Type exit or send an empty line to quit.",
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

			c := chat.New(b, rt.logger)
			return rt.repl(ctx, c, os.Stdin, cmd.OutOrStdout())
		},
	}
}

// repl answers each line read from in until exit, an empty line or EOF.
func (rt *runtime) repl(ctx context.Context, c *chat.Chat, in io.Reader, out io.Writer) error {
	interactive := present.IsInputTTY() && !rt.cfg.Quiet
	if interactive {
		fmt.Fprintln(os.Stderr, present.StderrStyles().Comment.Render("Ask a question. Type exit or press enter on an empty line to quit."))
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(os.Stderr, present.StderrStyles().Role.Render("> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.EqualFold(line, "exit") {
			return nil
		}

		reply := present.Spin(ctx, os.Stderr, present.IsErrorTTY() && !rt.cfg.Quiet, "Thinking…",
			func(ctx context.Context) string { return c.Ask(ctx, line) },
		)
		fmt.Fprint(out, present.Reply(reply, present.IsOutputTTY() && !rt.cfg.Raw, rt.cfg.WordWrap))
		if ctx.Err() != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
