package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/server"
)

type DocCmd struct {
	flags *Flags
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Integration guides",
		Description: `Prints reference material for integrating with chatwidget.

Use 'chatwidget doc webhook' for the responder contract.
Use 'chatwidget doc bridge' for the websocket frame protocol.`,
		Commands: []*cli.Command{
			{
				Name:   "webhook",
				Usage:  "Show the responder webhook contract",
				Action: cmd.runWebhook,
			},
			{
				Name:   "bridge",
				Usage:  "Show the websocket bridge protocol",
				Action: cmd.runBridge,
			},
		},
	})
	return app
}

func (cmd *DocCmd) runWebhook(_ context.Context, c *cli.Command) error {
	url := "(not configured)"
	if cmd.flags.Config != nil && cmd.flags.Config.Webhook.URL != "" {
		url = cmd.flags.Config.Webhook.URL
	}
	printWebhookGuide(c.Root().Writer, url)
	return nil
}

func (cmd *DocCmd) runBridge(_ context.Context, c *cli.Command) error {
	addr := ":3000"
	if cmd.flags.Config != nil && cmd.flags.Config.Server.Addr != "" {
		addr = cmd.flags.Config.Server.Addr
	}
	printBridgeGuide(c.Root().Writer, addr)
	return nil
}

func printWebhookGuide(w io.Writer, url string) {
	guide := `# Responder Webhook

Configured URL: ` + url + `

Every message the user sends is POSTed once, without retries:

` + "```json" + `
{
  "message": "Quais são os preços?",
  "sessionId": "session_1716000000000_k3j9x2a1b",
  "language": "pt",
  "timestamp": "2024-05-18T02:40:00.000Z"
}
` + "```" + `

Headers from webhook.headers are added to the request.

## Reply

Any 2xx response is read as the reply. The first non-empty of these wins:

| Body | Reply |
|------|-------|
| ` + "`{\"output\": {\"response\": \"...\"}}`" + ` | output.response |
| ` + "`{\"response\": \"...\"}`" + ` | response |
| ` + "`{\"output\": \"...\"}`" + ` | output |
| anything else | the raw body |

Non-2xx statuses, timeouts (webhook.timeout), network errors and empty
bodies produce a fallback reply chosen by keyword from the fallback table.

'chatwidget serve' exposes a keyword responder at POST /api/webhook that
follows this contract.`
	_, _ = fmt.Fprintln(w, guide)
}

func printBridgeGuide(w io.Writer, addr string) {
	var b strings.Builder

	b.WriteString("# Websocket Bridge\n\n")
	fmt.Fprintf(&b, "Connect to ws://<host>%s/api/widget/ws?client=<id>\n\n", addr)
	b.WriteString(`The client id (letters, digits, '-' and '_', up to 64) scopes stored history,
so reconnecting with the same id resumes the conversation. Without one a
random id is assigned and returned in the first snapshot.

Frames are JSON objects with a "type" field.

## Host to widget

| Type | Fields |
|------|--------|
`)
	for _, row := range [][2]string{
		{server.FrameOpen, "initialMessage, language"},
		{server.FrameSubmit, "text"},
		{server.FrameQuickReply, "index"},
		{server.FrameClose, ""},
		{server.FrameEscalate, ""},
		{server.FrameClear, ""},
	} {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
	}

	b.WriteString(`
## Widget to host

| Type | Fields |
|------|--------|
`)
	for _, row := range [][2]string{
		{server.FrameSnapshot, "clientId, sessionId, state, messages, quickReplies"},
		{server.FrameMessage, "message"},
		{server.FrameState, "state, quickReplies"},
		{server.FrameToggle, "open"},
		{server.FrameEscalate, "url"},
		{server.FrameError, "error"},
	} {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
	}

	b.WriteString("\n## Error codes\n\n")
	for _, code := range []string{
		server.CodeBusy,
		server.CodeClosed,
		server.CodeUnavailable,
		server.CodeIndex,
		server.CodeEscalation,
		server.CodeBadFrame,
		server.CodeInternal,
	} {
		fmt.Fprintf(&b, "- %s\n", code)
	}

	_, _ = fmt.Fprint(w, b.String())
}
