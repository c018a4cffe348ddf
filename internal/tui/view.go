package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/engine"
)

const fallbackTimeFormat = "15:04"

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.state == engine.Closed {
		launcher := headerStyle.Render("💬 " + m.entry.BotName)
		return lipgloss.JoinVertical(lipgloss.Left, launcher, m.renderHelp())
	}

	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
	}
	if len(m.quick) > 0 {
		parts = append(parts, m.renderQuickReplies())
	}
	if m.state == engine.AwaitingReply {
		parts = append(parts, typingStyle.Render(m.entry.BotName+" …"))
	}
	parts = append(parts, m.renderStatus(), m.input.View(), m.renderHelp())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	online := onlineStyle.Render("● " + m.entry.OnlineLabel)
	return headerStyle.Render(m.entry.BotName) + " " + online
}

func (m Model) renderMessages() string {
	format := m.entry.TimeFormat
	if format == "" {
		format = fallbackTimeFormat
	}

	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		ts := timeStyle.Render(msg.Timestamp.Local().Format(format))

		if msg.Sender == conversation.SenderUser {
			line := userBubbleStyle.Render(msg.Text) + " " + ts
			b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, line))
			continue
		}

		b.WriteString(botBubbleStyle.Render(m.renderBot(msg.Text)))
		b.WriteString("\n")
		b.WriteString(ts)
	}
	return b.String()
}

func (m Model) renderBot(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func (m Model) renderQuickReplies() string {
	lines := []string{quickLabelStyle.Render(m.entry.QuickRepliesLabel)}
	for i, q := range m.quick {
		lines = append(lines, quickItemStyle.Render(fmt.Sprintf("%d. %s", i+1, q)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.status != "":
		return statusStyle.Render(m.status)
	case m.link != "":
		return escalateStyle.Render(m.entry.EscalateLabel + ": " + m.link)
	default:
		return ""
	}
}

func (m Model) renderHelp() string {
	bindings := keys.help(m.state != engine.Closed)
	items := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		items = append(items, h.Key+" "+h.Desc)
	}
	return helpStyle.Render(strings.Join(items, " • "))
}
