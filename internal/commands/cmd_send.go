package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
)

type SendCmd struct {
	flags *Flags

	// Command-specific flags
	language  string
	format    string
	ephemeral bool
	timeout   time.Duration

	stdin io.Reader
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags, stdin: os.Stdin}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send one message and print the reply",
		UsageText: "chatwidget send [options] <message...>",
		Description: `Sends a single message through the widget and prints the bot's reply.

The message is taken from the arguments, or read from stdin when no
arguments are given. The exchange joins the stored conversation unless
--ephemeral is set.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "language",
				Aliases:     []string{"l"},
				Usage:       "language for a new conversation (pt, en, es)",
				Sources:     cli.EnvVars("CHATWIDGET_LANGUAGE"),
				Destination: &cmd.language,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "ephemeral",
				Usage:       "do not read or write stored history",
				Destination: &cmd.ephemeral,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "time allowed for the reply, including the typing delay",
				Value:       time.Minute,
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	text, err := cmd.message(c.Args().Slice())
	if err != nil {
		return err
	}

	w, err := newWidget(ctx, cmd.flags, escalation.NopOpener{})
	if err != nil {
		return err
	}

	var store kv.Store
	if !cmd.ephemeral {
		store = cmd.flags.Store
	}

	eng := w.engine(store, cmd.language)
	defer eng.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	if err := eng.Open(ctx, engine.Activation{}); err != nil {
		return fmt.Errorf("open widget: %w", err)
	}

	reply, err := exchange(ctx, eng, text)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID string               `json:"session_id"`
			Reply     conversation.Message `json:"reply"`
		}{
			SessionID: eng.Session().ID,
			Reply:     reply,
		})
	}

	_, err = fmt.Fprintln(out, reply.Text)
	return err
}

func (cmd *SendCmd) message(args []string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text != "" {
		return text, nil
	}

	if f, ok := cmd.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no message provided; pass it as arguments or pipe it on stdin")
	}

	data, err := io.ReadAll(cmd.stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text = strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("message is empty")
	}
	return text, nil
}

// exchange submits text and waits for the bot reply it produces.
func exchange(ctx context.Context, eng *engine.Engine, text string) (conversation.Message, error) {
	before := len(eng.Messages())

	if err := eng.Submit(ctx, text); err != nil {
		return conversation.Message{}, fmt.Errorf("submit: %w", err)
	}
	if err := eng.Wait(ctx); err != nil {
		return conversation.Message{}, fmt.Errorf("wait for reply: %w", err)
	}

	msgs := eng.Messages()
	for i := len(msgs) - 1; i >= before; i-- {
		if msgs[i].Sender == conversation.SenderBot {
			return msgs[i], nil
		}
	}
	return conversation.Message{}, errors.New("no reply received")
}
