package engine

import (
	"context"
	"sync"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/session"
)

// State is the visible state of the widget.
type State int

const (
	Closed State = iota
	Idle
	AwaitingReply
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Idle:
		return "idle"
	case AwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// Listener receives engine notifications. Notifications are delivered in order
// on a dedicated goroutine, never while the engine lock is held, so listeners
// may call back into the engine.
type Listener interface {
	OnStateChange(from, to State)
	OnMessage(msg conversation.Message)
	OnToggle(open bool)
	OnEscalate(url string)
	OnQuickReply(text string)
}

// BaseListener implements Listener with no-ops. Embed it to handle a subset.
type BaseListener struct{}

func (BaseListener) OnStateChange(State, State) {}
func (BaseListener) OnMessage(conversation.Message) {}
func (BaseListener) OnToggle(bool) {}
func (BaseListener) OnEscalate(string) {}
func (BaseListener) OnQuickReply(string) {}

// tracker counts outstanding work and lets callers wait for it to reach zero.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	if t.idle == nil {
		t.idle = make(chan struct{})
	}
	ch := t.idle
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// note is a queued event and the session that was current when it was emitted.
type note struct {
	sess    session.Session
	deliver func(Listener)
}

// notifier delivers queued events to listeners in order.
type notifier struct {
	mu        sync.Mutex
	listeners []Listener
	queue     []note
	stopping  bool
	wake      chan struct{}
	pending   tracker

	// session of the note being delivered
	delivering session.Session
}

func newNotifier(listeners []Listener) *notifier {
	n := &notifier{
		listeners: append([]Listener(nil), listeners...),
		wake:      make(chan struct{}, 1),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) emit(sess session.Session, deliver func(Listener)) {
	n.mu.Lock()
	if n.stopping {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, note{sess: sess, deliver: deliver})
	n.pending.add()
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// stop lets the delivery goroutine exit once the queue is drained.
func (n *notifier) stop() {
	n.mu.Lock()
	n.stopping = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			stopping := n.stopping
			n.mu.Unlock()
			if stopping {
				return
			}
			<-n.wake
			continue
		}
		batch := n.queue
		n.queue = nil
		listeners := append([]Listener(nil), n.listeners...)
		n.mu.Unlock()

		for _, ev := range batch {
			n.mu.Lock()
			n.delivering = ev.sess
			n.mu.Unlock()

			for _, l := range listeners {
				ev.deliver(l)
			}
			n.pending.done()
		}
	}
}

func (n *notifier) current() session.Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivering
}
