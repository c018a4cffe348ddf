package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/session"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/gateway"
)

type tracker struct {
	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

func (t tracker) track(ctx context.Context, name, sessionID string, props map[string]any) {
	ev := Event{Name: name, SessionID: sessionID, Timestamp: t.now(), Props: props}
	if err := t.sink.Track(ctx, ev); err != nil {
		t.log.Warn().Err(err).Str("event", name).Msg("analytics event dropped")
	}
}

type trackedGateway struct {
	next gateway.Gateway
	tracker
}

// WrapGateway records response and error events around each exchange.
func WrapGateway(next gateway.Gateway, sink Sink, log zerolog.Logger) gateway.Gateway {
	return &trackedGateway{next: next, tracker: tracker{sink: sink, log: log, now: time.Now}}
}

func (g *trackedGateway) Send(ctx context.Context, utterance string, s session.Session) gateway.Result {
	start := g.now()
	res := g.next.Send(ctx, utterance, s)
	elapsed := g.now().Sub(start)

	if res.OK() {
		g.track(ctx, EventResponseReceived, s.ID, map[string]any{
			"response_time_ms": elapsed.Milliseconds(),
		})
	} else {
		g.track(ctx, EventError, s.ID, map[string]any{
			"reason":           res.Reason,
			"response_time_ms": elapsed.Milliseconds(),
		})
	}
	return res
}

// SessionSource supplies the session events are attributed to: the one
// current when the notification was emitted, not when it is delivered.
type SessionSource interface {
	NotifiedSession() session.Session
}

// Listener turns engine notifications into analytics events.
type Listener struct {
	engine.BaseListener
	tracker
	source SessionSource
}

// NewListener creates a listener attributing events to source's session.
func NewListener(sink Sink, source SessionSource, log zerolog.Logger) *Listener {
	return &Listener{tracker: tracker{sink: sink, log: log, now: time.Now}, source: source}
}

func (l *Listener) sessionID() string {
	if l.source == nil {
		return ""
	}
	return l.source.NotifiedSession().ID
}

// OnToggle records open and close.
func (l *Listener) OnToggle(open bool) {
	name := EventClosed
	if open {
		name = EventOpened
	}
	l.track(context.Background(), name, l.sessionID(), nil)
}

// OnMessage records user messages.
func (l *Listener) OnMessage(msg conversation.Message) {
	if msg.Sender != conversation.SenderUser {
		return
	}
	l.track(context.Background(), EventMessageSent, l.sessionID(), map[string]any{
		"message_length": len([]rune(msg.Text)),
	})
}

// OnEscalate records hand-off clicks.
func (l *Listener) OnEscalate(string) {
	l.track(context.Background(), EventEscalated, l.sessionID(), nil)
}

// OnQuickReply records quick reply selections.
func (l *Listener) OnQuickReply(text string) {
	l.track(context.Background(), EventQuickReply, l.sessionID(), map[string]any{
		"question": text,
	})
}

// Attach subscribes a listener for sink to e.
func Attach(e *engine.Engine, sink Sink, log zerolog.Logger) *Listener {
	l := NewListener(sink, e, log)
	e.Subscribe(l)
	return l
}
