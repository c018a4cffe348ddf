package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bmatcuk/doublestar/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/analytics"
	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/pkg/randid"
)

type EventsCmd struct {
	flags *Flags

	// Command-specific flags
	name    string
	format  string
	wait    bool
	timeout time.Duration
}

// NewEventsCmd creates a new events command.
func NewEventsCmd(flags *Flags) *EventsCmd {
	return &EventsCmd{flags: flags}
}

// Register adds the events command to the application.
func (cmd *EventsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "events",
		Usage: "Follow published usage events",
		Commands: []*cli.Command{
			{
				Name:      "tail",
				Usage:     "Print usage events as they are published",
				UsageText: "chatwidget events tail [--name <glob>] [--wait]",
				Description: `Follows the analytics stream and prints each event as it arrives.

Requires analytics.driver to be "redis". Only events published after the
command starts are shown.

Examples:
  chatwidget events tail
  chatwidget events tail --name 'chat_*' --format json
  chatwidget events tail --wait --name whatsapp_button_clicked --timeout 5m`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "name",
						Aliases:     []string{"n"},
						Usage:       "glob over event names",
						Destination: &cmd.name,
					},
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
					&cli.BoolFlag{
						Name:        "wait",
						Aliases:     []string{"w"},
						Usage:       "exit after the first matching event",
						Destination: &cmd.wait,
					},
					&cli.DurationFlag{
						Name:        "timeout",
						Usage:       "stop after this long (0 follows until interrupted)",
						Destination: &cmd.timeout,
					},
				},
				Action: cmd.runTail,
			},
		},
	})

	return app
}

func (cmd *EventsCmd) runTail(ctx context.Context, c *cli.Command) error {
	a := cmd.flags.Config.Analytics
	if a.Driver != config.AnalyticsRedis {
		return fmt.Errorf("events tail reads the redis analytics stream; analytics.driver is %q", a.Driver)
	}
	if cmd.name != "" && !doublestar.ValidatePattern(cmd.name) {
		return fmt.Errorf("invalid --name pattern %q", cmd.name)
	}

	if cmd.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.timeout)
		defer cancel()
	}

	topic := a.Topic
	if topic == "" {
		topic = analytics.DefaultTopic
	}

	client := goredis.NewClient(&goredis.Options{Addr: a.RedisAddr})
	defer func() { _ = client.Close() }()

	group := "chatwidget-tail-" + randid.Generate(6)
	if err := analytics.EnsureGroupAtTail(ctx, client, topic, group); err != nil {
		return err
	}
	defer func() {
		// the group is private to this run
		_ = client.XGroupDestroy(context.WithoutCancel(ctx), topic, group).Err()
	}()

	logger := log.With().Str("component", "events").Logger()
	sub, err := analytics.NewRedisSubscriber(client, group, group, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	err = tailEvents(ctx, msgs, c.Root().Writer, tailOptions{
		Match: cmd.name,
		JSON:  cmd.format == "json",
		Once:  cmd.wait,
	})

	switch {
	case errors.Is(err, errNoEvent):
		return fmt.Errorf("no matching event on %s within %s", topic, cmd.timeout)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

type tailOptions struct {
	Match string
	JSON  bool
	Once  bool
}

var errNoEvent = errors.New("no event received")

// tailEvents prints events from msgs until the channel closes or ctx ends.
// With Once set it returns after the first matching event, and errNoEvent when
// none arrived.
func tailEvents(ctx context.Context, msgs <-chan *message.Message, w io.Writer, opts tailOptions) error {
	for {
		select {
		case <-ctx.Done():
			if opts.Once {
				return errNoEvent
			}
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if opts.Once {
					return errNoEvent
				}
				return nil
			}
			msg.Ack()

			ev, err := analytics.Decode(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable event")
				continue
			}
			if opts.Match != "" {
				if ok, _ := doublestar.Match(opts.Match, ev.Name); !ok {
					continue
				}
			}

			if err := writeEvent(w, ev, opts.JSON); err != nil {
				return err
			}
			if opts.Once {
				return nil
			}
		}
	}
}

func writeEvent(w io.Writer, ev analytics.Event, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}

	keys := make([]string, 0, len(ev.Props))
	for k := range ev.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-24s %s", ev.Timestamp.Local().Format(historyTimeFormat), ev.Name, ev.SessionID)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Props[k])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
