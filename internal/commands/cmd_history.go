package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/printer"
	"github.com/hay-kot/chatwidget/internal/styles"
)

const historyTimeFormat = "2006-01-02 15:04:05"

type HistoryCmd struct {
	flags *Flags

	// Command-specific flags
	match  string
	client string
	format string
	all    bool
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	clientFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:        "client",
			Usage:       "bridged client id whose history to use",
			Destination: &cmd.client,
		}
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Inspect or reset stored conversations",
		UsageText: "chatwidget history <command> [options]",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List stored conversations",
				UsageText: "chatwidget history ls [--match <glob>]",
				Description: `Lists every stored conversation, including those of clients served by the
websocket bridge. --match filters with a glob over "<scope><session id>",
for example 'client:*:session_*' or 'session_1716*'.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "match",
						Usage:       "glob over scope and session id",
						Destination: &cmd.match,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:      "show",
				Usage:     "Print a conversation",
				UsageText: "chatwidget history show [session-id]",
				Description: "Prints the given conversation, or the current one when no id is given.",
				Flags: []cli.Flag{
					clientFlag(),
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.runShow,
			},
			{
				Name:      "clear",
				Usage:     "Delete stored conversations",
				UsageText: "chatwidget history clear [session-id] [--all]",
				Description: `Deletes the given conversation, or the current one when no id is given.
Deleting the current conversation also forgets the session, so the next
chat starts fresh. --all deletes every stored conversation in every scope.`,
				Flags: []cli.Flag{
					clientFlag(),
					&cli.BoolFlag{
						Name:        "all",
						Usage:       "delete every stored conversation",
						Destination: &cmd.all,
					},
				},
				Action: cmd.runClear,
			},
		},
	})

	return app
}

func (cmd *HistoryCmd) store() (kv.Store, error) {
	if cmd.flags.Store == nil {
		if cmd.flags.StoreErr != nil {
			return nil, cmd.flags.StoreErr
		}
		return nil, errors.New("storage not configured")
	}
	return cmd.flags.Store, nil
}

func (cmd *HistoryCmd) scope() string {
	if cmd.client == "" {
		return ""
	}
	return "client:" + cmd.client + ":"
}

func (cmd *HistoryCmd) runList(ctx context.Context, c *cli.Command) error {
	store, err := cmd.store()
	if err != nil {
		return err
	}

	if cmd.match != "" && !doublestar.ValidatePattern(cmd.match) {
		return fmt.Errorf("invalid --match pattern %q", cmd.match)
	}

	records, err := conversation.Scan(ctx, store)
	if err != nil {
		return err
	}

	records = filterRecords(records, cmd.match)
	if len(records) == 0 {
		printer.Ctx(ctx).Infof("No stored conversations")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCOPE\tSESSION\tMESSAGES\tSTATUS\tUPDATED")

	for _, r := range records {
		scope := strings.TrimSuffix(r.Scope, ":")
		if scope == "" {
			scope = "-"
		}

		status := printer.StatusOK()
		switch {
		case r.Err != nil:
			status = printer.StatusFailed("unreadable")
		case !r.Current:
			status = printer.StatusWarn("detached")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			scope,
			r.SessionID,
			len(r.Messages),
			status,
			r.UpdatedAt.Local().Format(historyTimeFormat),
		)
	}

	return w.Flush()
}

// filterRecords keeps records whose "<scope><session id>" matches pattern.
func filterRecords(records []conversation.Record, pattern string) []conversation.Record {
	if pattern == "" {
		return records
	}

	var out []conversation.Record
	for _, r := range records {
		if ok, _ := doublestar.Match(pattern, r.Scope+r.SessionID); ok {
			out = append(out, r)
		}
	}
	return out
}

func (cmd *HistoryCmd) find(ctx context.Context, store kv.Store, sessionID string) (conversation.Record, error) {
	records, err := conversation.Scan(ctx, store)
	if err != nil {
		return conversation.Record{}, err
	}

	scope := cmd.scope()
	for _, r := range records {
		if r.Scope != scope {
			continue
		}
		if (sessionID == "" && r.Current) || r.SessionID == sessionID {
			return r, nil
		}
	}

	if sessionID == "" {
		return conversation.Record{}, errors.New("no current conversation")
	}
	return conversation.Record{}, fmt.Errorf("conversation %q not found", sessionID)
}

func (cmd *HistoryCmd) runShow(ctx context.Context, c *cli.Command) error {
	store, err := cmd.store()
	if err != nil {
		return err
	}

	rec, err := cmd.find(ctx, store, c.Args().First())
	if err != nil {
		return err
	}
	if rec.Err != nil {
		return fmt.Errorf("read conversation %s: %w", rec.SessionID, rec.Err)
	}

	out := c.Root().Writer
	if cmd.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID string                 `json:"session_id"`
			Messages  []conversation.Message `json:"messages"`
		}{
			SessionID: rec.SessionID,
			Messages:  rec.Messages,
		})
	}

	printTranscript(out, rec)
	return nil
}

func printTranscript(out io.Writer, rec conversation.Record) {
	_, _ = fmt.Fprintln(out, styles.DividerStyle.Render("── "+rec.SessionID))
	for _, m := range rec.Messages {
		who := styles.BotStyle.Render("bot ")
		if m.Sender == conversation.SenderUser {
			who = styles.UserStyle.Render("you ")
		}
		ts := styles.DividerStyle.Render(m.Timestamp.Local().Format(historyTimeFormat))
		_, _ = fmt.Fprintf(out, "%s %s %s\n", ts, who, m.Text)
	}
}

func (cmd *HistoryCmd) runClear(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	store, err := cmd.store()
	if err != nil {
		return err
	}

	if cmd.all {
		records, err := conversation.Scan(ctx, store)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := conversation.Remove(ctx, store, r); err != nil {
				return fmt.Errorf("clear %s: %w", r.SessionID, err)
			}
		}
		p.Successf("Cleared %d conversation(s)", len(records))
		return nil
	}

	rec, err := cmd.find(ctx, store, c.Args().First())
	if err != nil {
		return err
	}
	if err := conversation.Remove(ctx, store, rec); err != nil {
		return fmt.Errorf("clear %s: %w", rec.SessionID, err)
	}

	p.Successf("Cleared conversation %s", rec.SessionID)
	return nil
}
