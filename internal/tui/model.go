package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
)

const (
	defaultWidth  = 60
	defaultHeight = 20
	inputLimit    = 500
)

// Options configures the TUI.
type Options struct {
	Engine     *engine.Engine
	Activation engine.Activation
	// Markdown renders bot replies with glamour once the terminal size is known.
	Markdown bool
}

// Model is the Bubble Tea model for the chat widget.
type Model struct {
	ctx      context.Context
	eng      *engine.Engine
	act      engine.Activation
	markdown bool

	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	entry    locale.Entry
	messages []conversation.Message
	quick    []string
	state    engine.State
	status   string
	link     string

	width    int
	height   int
	quitting bool
}

// New creates a model driving eng. The engine is opened by Init.
func New(ctx context.Context, opts Options) Model {
	ti := textinput.New()
	ti.CharLimit = inputLimit
	ti.Prompt = "› "
	ti.Focus()

	m := Model{
		ctx:      ctx,
		eng:      opts.Engine,
		act:      opts.Activation,
		markdown: opts.Markdown,
		input:    ti,
		viewport: viewport.New(defaultWidth, defaultHeight),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.sync()
	return m
}

// Run starts the program and blocks until the user quits. The engine is shut
// down on return.
func Run(ctx context.Context, opts Options) error {
	defer opts.Engine.Shutdown()

	opts.Markdown = true
	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	opts.Engine.Subscribe(Forwarder{Send: p.Send})

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.openCmd())
}

func (m Model) openCmd() tea.Cmd {
	act := m.act
	return m.do(func(ctx context.Context) error {
		return m.eng.Open(ctx, act)
	})
}

// do runs fn off the update loop and reports the outcome as a message.
func (m Model) do(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return errMsg{err: err}
		}
		return syncMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case stateMsg, messageMsg, toggleMsg, syncMsg:
		m.sync()
		return m, nil
	case escalateMsg:
		m.link = msg.link
		return m, nil
	case errMsg:
		m.status = describeError(msg.err)
		log.Debug().Err(msg.err).Msg("widget action failed")
		m.sync()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Toggle):
		m.status = ""
		return m, m.do(m.eng.Toggle)
	}

	if m.state == engine.Closed {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Submit):
		text := m.input.Value()
		m.input.Reset()
		m.status = ""
		return m, m.do(func(ctx context.Context) error {
			return m.eng.Submit(ctx, text)
		})
	case key.Matches(msg, keys.Escalate):
		m.status = ""
		return m, m.do(func(ctx context.Context) error {
			_, err := m.eng.Escalate(ctx)
			return err
		})
	case key.Matches(msg, keys.Clear):
		m.status = ""
		m.link = ""
		act := engine.Activation{Language: m.act.Language}
		return m, m.do(func(ctx context.Context) error {
			if err := m.eng.ClearHistory(ctx); err != nil {
				return err
			}
			// reopen so the welcome message is shown again
			if err := m.eng.Close(); err != nil {
				return err
			}
			return m.eng.Open(ctx, act)
		})
	case key.Matches(msg, keys.ScrollUp), key.Matches(msg, keys.ScrollDn):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case key.Matches(msg, keys.Quick) && m.input.Value() == "" && len(m.quick) > 0:
		k := int(msg.Runes[0] - '1')
		m.status = ""
		return m, m.do(func(ctx context.Context) error {
			return m.eng.SelectQuickReply(ctx, k)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sync re-reads the engine. Notifications only tell the model that something
// changed; the engine is the source of truth.
func (m *Model) sync() {
	m.entry = m.eng.Locale()
	m.state = m.eng.State()
	m.messages = m.eng.Messages()
	m.quick = m.eng.QuickReplies()
	m.input.Placeholder = m.entry.Placeholder
	m.layout()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(width-4, 10)

	if m.markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("tokyo-night"),
			glamour.WithWordWrap(max(width-6, 20)),
		)
		if err != nil {
			log.Warn().Err(err).Msg("markdown renderer unavailable")
		} else {
			m.renderer = r
		}
	}
	m.layout()
}

// layout sizes the viewport to what is left after the fixed chrome.
func (m *Model) layout() {
	chrome := 4 // header, input, help, status
	if len(m.quick) > 0 {
		chrome += len(m.quick) + 1
	}
	if m.state == engine.AwaitingReply {
		chrome++
	}

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 3)
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func describeError(err error) string {
	switch {
	case errors.Is(err, engine.ErrBusy):
		return "waiting for the previous reply"
	case errors.Is(err, engine.ErrClosed):
		return "the widget is closed"
	case errors.Is(err, escalation.ErrNoRecipient):
		return "no hand-off recipient configured"
	case errors.Is(err, engine.ErrQuickReplyUnavailable), errors.Is(err, engine.ErrQuickReplyIndex):
		return "that quick reply is not available"
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
