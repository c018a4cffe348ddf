package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/tui"
	"github.com/hay-kot/chatwidget/pkg/executil"
)

type ChatCmd struct {
	flags *Flags

	// Command-specific flags
	message  string
	language string
}

// NewChatCmd creates a new chat command
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Flags returns the chat flags for registration on the root command
func (cmd *ChatCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "message",
			Aliases:     []string{"m"},
			Usage:       "message sent on the user's behalf shortly after the widget opens",
			Destination: &cmd.message,
		},
		&cli.StringFlag{
			Name:        "language",
			Aliases:     []string{"l"},
			Usage:       "language for a new conversation (pt, en, es)",
			Sources:     cli.EnvVars("CHATWIDGET_LANGUAGE"),
			Destination: &cmd.language,
		},
	}
}

// Register adds the chat command to the application
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Open the interactive chat widget",
		UsageText: "chatwidget chat [options]",
		Description: `Opens the chat widget in the terminal.

The conversation is restored from storage when persistence is enabled.
Press esc to close or reopen the widget, ctrl+w to continue on WhatsApp and
ctrl+l to start over.`,
		Flags:  cmd.Flags(),
		Action: cmd.run,
	})

	return app
}

// Run executes the chat widget. Exported for use as default command.
func (cmd *ChatCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *ChatCmd) run(ctx context.Context, _ *cli.Command) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat needs an interactive terminal; use 'chatwidget send' instead")
	}

	w, err := newWidget(ctx, cmd.flags, escalation.NewBrowserOpener(executil.Detached{}))
	if err != nil {
		return err
	}

	opts := tui.Options{
		Engine:     w.engine(cmd.flags.Store, cmd.language),
		Activation: engine.Activation{InitialMessage: cmd.message},
	}

	if err := tui.Run(ctx, opts); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
