package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/session"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/gateway"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Track(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, ev := range s.events {
		names[i] = ev.Name
	}
	return names
}

type staticGateway gateway.Result

func (g staticGateway) Send(context.Context, string, session.Session) gateway.Result {
	return gateway.Result(g)
}

func TestWrapGateway(t *testing.T) {
	tests := []struct {
		name   string
		result gateway.Result
		event  string
	}{
		{name: "success", result: gateway.Success("ok"), event: EventResponseReceived},
		{name: "failure", result: gateway.Failure(gateway.ReasonTimeout), event: EventError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			gw := WrapGateway(staticGateway(tt.result), sink, zerolog.Nop())

			res := gw.Send(context.Background(), "oi", session.Session{ID: "sid"})
			assert.Equal(t, tt.result, res)

			require.Len(t, sink.events, 1)
			assert.Equal(t, tt.event, sink.events[0].Name)
			assert.Equal(t, "sid", sink.events[0].SessionID)
			assert.Contains(t, sink.events[0].Props, "response_time_ms")
		})
	}
}

func TestListener_WithEngine(t *testing.T) {
	sink := &memorySink{}
	e := engine.New(engine.Options{
		Gateway:    WrapGateway(staticGateway(gateway.Success("ok")), sink, zerolog.Nop()),
		Escalation: escalation.Builder{Recipient: "1"},
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(e.Shutdown)
	Attach(e, sink, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, e.Open(ctx, engine.Activation{}))
	require.NoError(t, e.SelectQuickReply(ctx, 0))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(waitCtx))

	_, err := e.Escalate(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Wait(waitCtx))

	names := sink.Names()
	assert.Contains(t, names, EventOpened)
	assert.Contains(t, names, EventQuickReply)
	assert.Contains(t, names, EventMessageSent)
	assert.Contains(t, names, EventResponseReceived)
	assert.Contains(t, names, EventEscalated)
	assert.Equal(t, EventClosed, names[len(names)-1])

	sid := e.Session().ID
	for _, ev := range sink.events {
		assert.Equal(t, sid, ev.SessionID, ev.Name)
	}
}

// gate holds the notification goroutine on the first open until released.
type gate struct {
	engine.BaseListener
	release chan struct{}
}

func (g gate) OnToggle(open bool) {
	if open {
		<-g.release
	}
}

func TestListener_AttributesEventsToSessionAtEmit(t *testing.T) {
	sink := &memorySink{}
	g := gate{release: make(chan struct{})}
	e := engine.New(engine.Options{Listeners: []engine.Listener{g}, Logger: zerolog.Nop()})
	t.Cleanup(e.Shutdown)
	Attach(e, sink, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, e.Open(ctx, engine.Activation{}))
	sid := e.Session().ID
	require.NotEmpty(t, sid)

	require.NoError(t, e.Close())
	require.NoError(t, e.ClearHistory(ctx))
	assert.Empty(t, e.Session().ID)
	close(g.release)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(waitCtx))

	assert.Equal(t, []string{EventOpened, EventClosed}, sink.Names())
	for _, ev := range sink.events {
		assert.Equal(t, sid, ev.SessionID, ev.Name)
	}
}

func TestPublisherSink_GoChannel(t *testing.T) {
	ps := NewChannelPubSub(zerolog.Nop())
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ps.Subscribe(ctx, "events")
	require.NoError(t, err)

	sink := NewPublisherSink(ps, "events")
	ev := Event{Name: EventOpened, SessionID: "sid", Timestamp: time.Now().UTC()}
	require.NoError(t, sink.Track(ctx, ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		got, err := Decode(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, EventOpened, got.Name)
		assert.Equal(t, "sid", got.SessionID)
		assert.Equal(t, EventOpened, msg.Metadata.Get("event"))
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	var calls int
	failing := SinkFunc(func(context.Context, Event) error {
		calls++
		return errors.New("boom")
	})
	ok := SinkFunc(func(context.Context, Event) error {
		calls++
		return nil
	})

	err := Multi{ok, failing, failing}.Track(context.Background(), Event{Name: EventOpened})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 3, calls)
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()

	sink, closeFn, err := NewSink(ctx, Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, LogSink{}, sink)
	require.NoError(t, closeFn())

	sink, closeFn, err = NewSink(ctx, Config{Driver: DriverChannel}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sink.Track(ctx, Event{Name: EventOpened}))
	require.NoError(t, closeFn())

	_, _, err = NewSink(ctx, Config{Driver: "kafka"}, zerolog.Nop())
	assert.Error(t, err)
}
