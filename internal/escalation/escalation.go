// Package escalation builds the hand-off link to a human channel and opens it.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/hay-kot/chatwidget/pkg/executil"
	"github.com/hay-kot/chatwidget/pkg/tmpl"
)

// Defaults for the hand-off link.
const (
	DefaultHost     = "wa.me"
	DefaultGreeting = "Olá! Vim pelo site e gostaria de saber mais."
	DefaultLink     = "https://{{ .Host }}/{{ .Recipient }}?text={{ uriq .Greeting }}"
)

// ErrNoRecipient is returned when a link is built without a recipient.
var ErrNoRecipient = errors.New("escalation recipient is not configured")

// LinkData is the template context for the hand-off link.
type LinkData struct {
	Host      string
	Recipient string
	Greeting  string
	SessionID string
	Language  string
}

// Builder renders hand-off links from a template.
type Builder struct {
	Template  string
	Host      string
	Recipient string
	Greeting  string
}

// Build renders the link for a session.
func (b Builder) Build(sessionID, language string) (string, error) {
	if strings.TrimSpace(b.Recipient) == "" {
		return "", ErrNoRecipient
	}

	data := LinkData{
		Host:      orDefault(b.Host, DefaultHost),
		Recipient: b.Recipient,
		Greeting:  orDefault(b.Greeting, DefaultGreeting),
		SessionID: sessionID,
		Language:  language,
	}

	link, err := tmpl.Render(orDefault(b.Template, DefaultLink), data)
	if err != nil {
		return "", fmt.Errorf("render escalation link: %w", err)
	}
	return link, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Opener performs the side effect of handing a link to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// NopOpener leaves opening to the host, which receives the link through the
// engine listener.
type NopOpener struct{}

// Open does nothing.
func (NopOpener) Open(context.Context, string) error { return nil }

// BrowserOpener opens links with the platform's URL handler.
type BrowserOpener struct {
	Exec executil.Launcher
	GOOS string
}

// NewBrowserOpener creates an opener for the running platform.
func NewBrowserOpener(exec executil.Launcher) *BrowserOpener {
	return &BrowserOpener{Exec: exec, GOOS: runtime.GOOS}
}

// Open launches the URL handler without waiting for it.
func (o *BrowserOpener) Open(_ context.Context, url string) error {
	cmd, args := openCommand(o.GOOS)
	return o.Exec.Start(cmd, append(args, url)...)
}

func openCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
