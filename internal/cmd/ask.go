package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/spf13/cobra"

	"github.com/dotcommander/capmux/internal/chat"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
)

func newAskCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		RunE:  rt.runAsk,
	}
	initAskFlags(cmd, &rt.cfg)
	return cmd
}

type answer struct {
	reply  string
	thread string
	err    error
}

func (rt *runtime) runAsk(cmd *cobra.Command, args []string) error {
	if err := rt.configured(); err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	piped, err := readStdin()
	if err != nil {
		return errs.Wrap(err, "Could not read your input.")
	}
	question := inputQuestion(args, piped)
	if question == "" && present.IsInputTTY() {
		if question, err = promptQuestion(rt.cfg.Theme); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return errs.Error{Err: err, Reason: "User canceled."}
			}
			return errs.Wrap(err, "Prompt failed.")
		}
	}
	if strings.TrimSpace(question) == "" {
		return errs.Error{
			Reason: "You haven't asked anything.",
			Err: errs.UserErrorf(
				"You can give your question as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render("capmux [question]"),
			),
		}
	}

	b, err := rt.openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	c := chat.New(b, rt.logger)
	ans := present.Spin(ctx, os.Stderr, present.IsErrorTTY() && !rt.cfg.Quiet, "Thinking…",
		func(ctx context.Context) answer {
			reply, thread, err := c.AskThread(ctx, rt.cfg.Thread, question)
			return answer{reply, thread, err}
		},
	)
	if errors.Is(ans.err, chat.ErrUnknownThread) {
		return errs.Wrap(ans.err, fmt.Sprintf("Thread %s does not exist.", rt.cfg.Thread))
	}
	if ans.err != nil {
		return errs.Wrap(ans.err, "Could not start a thread.")
	}

	fmt.Print(present.Reply(ans.reply, present.IsOutputTTY() && !rt.cfg.Raw, rt.cfg.WordWrap))
	if rt.cfg.Copy {
		if err := clipboard.WriteAll(ans.reply); err != nil {
			rt.logger.Warn("could not copy the reply", "err", err)
		} else if !rt.cfg.Quiet {
			present.PrintAction(os.Stderr, "copied", "Reply copied to the clipboard.")
		}
	}
	if b.hosted && !rt.cfg.Quiet {
		s := present.StderrStyles()
		fmt.Fprintf(os.Stderr, "\n%s %s\n",
			s.Comment.Render("Continue with"),
			s.InlineCode.Render("capmux --async --thread "+ans.thread),
		)
	}
	return nil
}

// inputQuestion joins the question given as arguments with piped input.
func inputQuestion(args []string, piped string) string {
	prefix := strings.TrimSpace(strings.Join(args, " "))
	piped = strings.TrimSpace(piped)
	if prefix != "" && piped != "" {
		return prefix + "\n\n" + piped
	}
	return ordered.First(prefix, piped)
}

func promptQuestion(theme string) (string, error) {
	var question string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("What would you like to ask?").
				Value(&question),
		),
	).WithTheme(themeFrom(theme)).Run()
	if err != nil {
		return "", fmt.Errorf("prompt form: %w", err)
	}
	return question, nil
}

func themeFrom(theme string) *huh.Theme {
	switch theme {
	case "dracula":
		return huh.ThemeDracula()
	case "catppuccin":
		return huh.ThemeCatppuccin()
	case "base16":
		return huh.ThemeBase16()
	default:
		return huh.ThemeCharm()
	}
}
