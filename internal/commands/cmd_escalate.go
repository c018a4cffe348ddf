package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/printer"
	"github.com/hay-kot/chatwidget/pkg/executil"
)

type EscalateCmd struct {
	flags *Flags

	// Command-specific flags
	printOnly bool

	opener escalation.Opener
}

// NewEscalateCmd creates a new escalate command
func NewEscalateCmd(flags *Flags) *EscalateCmd {
	return &EscalateCmd{
		flags:  flags,
		opener: escalation.NewBrowserOpener(executil.Detached{}),
	}
}

// Register adds the escalate command to the application
func (cmd *EscalateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "escalate",
		Usage:     "Continue the conversation with a person",
		UsageText: "chatwidget escalate [--print]",
		Description: `Builds the hand-off link from the escalation settings and opens it in the
browser. The current session id and language are available to the link
template as {{ .SessionID }} and {{ .Language }}.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "print",
				Usage:       "print the link instead of opening it",
				Destination: &cmd.printOnly,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *EscalateCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	b := escalation.Builder{
		Template:  cfg.Escalation.Link,
		Host:      cfg.Escalation.Host,
		Recipient: cfg.Escalation.Recipient,
		Greeting:  cfg.Escalation.Greeting,
	}

	link, err := b.Build(cmd.currentSession(ctx), string(locale.Normalize(cfg.Language)))
	if err != nil {
		if errors.Is(err, escalation.ErrNoRecipient) {
			return fmt.Errorf("%w: set escalation.recipient in %s", err, cmd.flags.ConfigPath)
		}
		return err
	}

	if cmd.printOnly {
		_, err := fmt.Fprintln(c.Root().Writer, link)
		return err
	}

	if err := cmd.opener.Open(ctx, link); err != nil {
		return fmt.Errorf("open link: %w", err)
	}

	printer.Ctx(ctx).Success("Opened hand-off link", link)
	return nil
}

func (cmd *EscalateCmd) currentSession(ctx context.Context) string {
	if cmd.flags.Store == nil {
		return ""
	}
	entry, err := cmd.flags.Store.Get(ctx, kv.SessionKey)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Warn().Err(err).Msg("could not read current session")
		}
		return ""
	}
	return entry.Value
}
