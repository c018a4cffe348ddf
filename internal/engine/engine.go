// Package engine implements the conversation session engine: the state machine
// that takes user input, drives the responder exchange, applies fallback
// replies and keeps the conversation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/fallback"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/core/session"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/gateway"
)

var (
	ErrClosed                = errors.New("widget is closed")
	ErrBusy                  = errors.New("a reply is already pending")
	ErrShutdown              = errors.New("engine is shut down")
	ErrQuickReplyUnavailable = errors.New("quick replies are not available")
	ErrQuickReplyIndex       = errors.New("quick reply index out of range")
)

// DefaultSeedDelay lets the welcome message render before a seed message is sent.
const DefaultSeedDelay = time.Second

// Activation carries what the host supplies when opening the widget.
type Activation struct {
	InitialMessage string
	Language       locale.Tag
}

// Options configures an Engine.
type Options struct {
	Gateway gateway.Gateway
	// Store backs persistence. Nil disables it regardless of Persist.
	Store   kv.Store
	Persist bool

	Catalog  *locale.Catalog
	Language locale.Tag
	// Fallback replaces the locale fallback table when set.
	Fallback *fallback.Resolver

	SeedDelay  time.Duration
	Escalation escalation.Builder
	Opener     escalation.Opener

	Listeners []Listener
	Logger    zerolog.Logger
}

// Engine is the orchestrator. All transitions are serialized by one mutex;
// the responder exchange runs on its own goroutine outside it.
type Engine struct {
	gw         gateway.Gateway
	sessions   *session.Manager
	conv       *conversation.Store
	persist    bool
	catalog    *locale.Catalog
	language   locale.Tag
	fallback   *fallback.Resolver
	seedDelay  time.Duration
	escalation escalation.Builder
	opener     escalation.Opener
	log        zerolog.Logger
	now        func() time.Time

	lifetime context.Context
	cancel   context.CancelFunc
	tasks    tracker
	notes    *notifier

	mu         sync.Mutex
	open       bool
	pending    bool
	shutdown   bool
	gen        uint64
	sess       session.Session
	entry      locale.Entry
	seedCancel context.CancelFunc
}

// New creates an engine in the Closed state.
func New(opts Options) *Engine {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = locale.Default()
	}
	language := opts.Language
	if language == "" {
		language = catalog.DefaultTag()
	}
	opener := opts.Opener
	if opener == nil {
		opener = escalation.NopOpener{}
	}
	seedDelay := opts.SeedDelay
	if seedDelay < 0 {
		seedDelay = 0
	}

	entry, _ := catalog.Lookup(string(language))
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		gw:         opts.Gateway,
		sessions:   session.NewManager(opts.Store, opts.Logger),
		conv:       conversation.New(opts.Store, opts.Persist, opts.Logger),
		persist:    opts.Persist && opts.Store != nil,
		catalog:    catalog,
		language:   entry.Tag,
		fallback:   opts.Fallback,
		seedDelay:  seedDelay,
		escalation: opts.Escalation,
		opener:     opener,
		log:        opts.Logger,
		now:        time.Now,
		lifetime:   ctx,
		cancel:     cancel,
		notes:      newNotifier(opts.Listeners),
		entry:      entry,
	}
}

// Subscribe adds a listener.
func (e *Engine) Subscribe(l Listener) {
	e.notes.subscribe(l)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Messages returns a copy of the conversation.
func (e *Engine) Messages() []conversation.Message {
	return e.conv.Messages()
}

// Session returns the current session. The id is empty before the first
// activation and after a clear.
func (e *Engine) Session() session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// NotifiedSession returns the session that was current when the notification
// being delivered was emitted. It is meant for use inside Listener callbacks,
// where Session may already reflect later changes such as a clear.
func (e *Engine) NotifiedSession() session.Session {
	return e.notes.current()
}

// Snapshot is a consistent view of the engine taken under one lock.
type Snapshot struct {
	State        State
	Session      session.Session
	Messages     []conversation.Message
	QuickReplies []string
}

// Snapshot returns the state, session, conversation and quick replies as of
// one instant.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:    e.stateLocked(),
		Session:  e.sess,
		Messages: e.conv.Messages(),
	}
	if e.quickRepliesAvailableLocked() {
		snap.QuickReplies = append([]string(nil), e.entry.QuickReplies...)
	}
	return snap
}

// Locale returns the entry in use for the current session.
func (e *Engine) Locale() locale.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entry
}

// Open activates the widget. Opening an open widget does nothing.
func (e *Engine) Open(ctx context.Context, act Activation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if e.open {
		return nil
	}

	before := e.stateLocked()
	e.ensureSessionLocked(ctx)

	// toggle goes out before the welcome so hosts that snapshot on open
	// already hold it when its message notification arrives
	e.open = true
	e.emitLocked(func(l Listener) { l.OnToggle(true) })

	if e.conv.Len() == 0 {
		lang := act.Language
		if lang == "" {
			lang = e.language
		}
		e.entry, _ = e.catalog.Lookup(string(lang))
		e.sess.Language = e.entry.Tag
		e.appendLocked(ctx, conversation.NewMessage(conversation.SenderBot, e.entry.WelcomeText, e.now()))
	}
	e.notifyStateLocked(before)

	e.log.Debug().Str("session_id", e.sess.ID).Str("language", string(e.entry.Tag)).Msg("widget opened")

	if seed := strings.TrimSpace(act.InitialMessage); seed != "" {
		e.scheduleSeedLocked(seed)
	}
	return nil
}

// Close deactivates the widget. A pending exchange keeps running and its
// reply is appended; an undelivered seed message is dropped.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if !e.open {
		return nil
	}

	before := e.stateLocked()
	e.open = false
	e.cancelSeedLocked()
	e.emitLocked(func(l Listener) { l.OnToggle(false) })
	e.notifyStateLocked(before)
	return nil
}

// Toggle opens a closed widget or closes an open one.
func (e *Engine) Toggle(ctx context.Context) error {
	if e.State() == Closed {
		return e.Open(ctx, Activation{})
	}
	return e.Close()
}

// Submit sends user text. Blank text is ignored.
func (e *Engine) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.acceptingLocked(); err != nil {
		return err
	}
	e.submitLocked(ctx, text)
	return nil
}

// QuickReplies returns the prompts to offer, or nil when they should not be
// shown: only right after the welcome message and with nothing pending.
func (e *Engine) QuickReplies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.quickRepliesAvailableLocked() {
		return nil
	}
	return append([]string(nil), e.entry.QuickReplies...)
}

// SelectQuickReply submits the k-th quick reply as if it had been typed.
func (e *Engine) SelectQuickReply(ctx context.Context, k int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if !e.open {
		return ErrClosed
	}
	if !e.quickRepliesAvailableLocked() {
		return ErrQuickReplyUnavailable
	}
	if k < 0 || k >= len(e.entry.QuickReplies) {
		return fmt.Errorf("%w: %d", ErrQuickReplyIndex, k)
	}

	text := e.entry.QuickReplies[k]
	e.emitLocked(func(l Listener) { l.OnQuickReply(text) })
	e.submitLocked(ctx, text)
	return nil
}

// Escalate builds the hand-off link and opens it. It does not change state.
func (e *Engine) Escalate(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return "", ErrShutdown
	}
	if !e.open {
		e.mu.Unlock()
		return "", ErrClosed
	}

	link, err := e.escalation.Build(e.sess.ID, string(e.entry.Tag))
	if err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("escalate: %w", err)
	}
	e.emitLocked(func(l Listener) { l.OnEscalate(link) })
	e.mu.Unlock()

	if err := e.opener.Open(ctx, link); err != nil {
		return link, fmt.Errorf("open escalation link: %w", err)
	}
	return link, nil
}

// ClearHistory empties the conversation and forgets the session. Replies to
// exchanges started before the clear are discarded.
func (e *Engine) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}

	before := e.stateLocked()
	sid := e.sess.ID
	e.gen++
	e.pending = false
	e.cancelSeedLocked()

	var errs []error
	if err := e.conv.Clear(ctx, sid); err != nil {
		errs = append(errs, err)
	}
	if e.persist {
		if err := e.sessions.Forget(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	e.sess = session.Session{}
	e.entry, _ = e.catalog.Lookup(string(e.language))
	e.notifyStateLocked(before)

	e.log.Debug().Str("session_id", sid).Msg("history cleared")
	return errors.Join(errs...)
}

// Shutdown ends the engine lifetime. Timers stop, in-flight exchanges are
// cancelled and their results dropped, and later calls return ErrShutdown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return
	}

	before := e.stateLocked()
	e.shutdown = true
	e.gen++
	e.open = false
	e.pending = false
	e.cancelSeedLocked()
	e.cancel()
	e.notifyStateLocked(before)
	e.notes.stop()
}

// Wait blocks until no seed or exchange is outstanding and every notification
// has been delivered.
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.tasks.wait(ctx); err != nil {
		return err
	}
	return e.notes.pending.wait(ctx)
}

func (e *Engine) stateLocked() State {
	switch {
	case !e.open:
		return Closed
	case e.pending:
		return AwaitingReply
	default:
		return Idle
	}
}

func (e *Engine) emitLocked(deliver func(Listener)) {
	e.notes.emit(e.sess, deliver)
}

func (e *Engine) notifyStateLocked(before State) {
	after := e.stateLocked()
	if before == after {
		return
	}
	e.emitLocked(func(l Listener) { l.OnStateChange(before, after) })
}

func (e *Engine) acceptingLocked() error {
	switch {
	case e.shutdown:
		return ErrShutdown
	case !e.open:
		return ErrClosed
	case e.pending:
		return ErrBusy
	}
	return nil
}

func (e *Engine) quickRepliesAvailableLocked() bool {
	return !e.pending && len(e.entry.QuickReplies) > 0 && e.conv.Len() == 1
}

func (e *Engine) ensureSessionLocked(ctx context.Context) {
	if e.sess.ID != "" {
		return
	}

	id := e.sessions.Obtain(ctx, e.persist)
	created, ok := session.CreatedAtFromID(id)
	if !ok {
		created = e.now()
	}
	e.sess = session.Session{ID: id, Language: e.entry.Tag, CreatedAt: created}

	if e.persist {
		if msgs := e.conv.Load(ctx, id); len(msgs) > 0 {
			e.log.Debug().Str("session_id", id).Int("messages", len(msgs)).Msg("restored conversation")
		}
	} else {
		e.conv.Bind(id)
	}
}

func (e *Engine) appendLocked(ctx context.Context, msg conversation.Message) {
	if err := e.conv.Append(ctx, msg); err != nil {
		if errors.Is(err, conversation.ErrDuplicateID) {
			e.log.Error().Err(err).Msg("message dropped")
			return
		}
		// the in-memory append stands
		e.log.Warn().Err(err).Msg("message not persisted")
	}
	e.emitLocked(func(l Listener) { l.OnMessage(msg) })
}

// submitLocked appends the user message and starts the exchange. The caller
// has checked that the engine is accepting input.
func (e *Engine) submitLocked(ctx context.Context, text string) {
	before := e.stateLocked()
	e.ensureSessionLocked(ctx)
	e.appendLocked(ctx, conversation.NewMessage(conversation.SenderUser, text, e.now()))
	e.pending = true
	e.notifyStateLocked(before)

	resolver := e.fallback
	if resolver == nil {
		resolver = e.entry.Fallback()
	}

	e.tasks.add()
	go e.exchange(e.gen, e.sess, text, resolver)
}

func (e *Engine) exchange(gen uint64, sess session.Session, text string, resolver *fallback.Resolver) {
	defer e.tasks.done()

	res := e.send(sess, text)
	reply := res.Text
	if !res.OK() {
		reply = resolver.Resolve(text)
		e.log.Info().Str("session_id", sess.ID).Str("reason", res.Reason).Msg("responder failed, using fallback reply")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		e.log.Debug().Str("session_id", sess.ID).Msg("discarding reply from a previous generation")
		return
	}

	before := e.stateLocked()
	e.appendLocked(e.lifetime, conversation.NewMessage(conversation.SenderBot, reply, e.now()))
	e.pending = false
	e.notifyStateLocked(before)
}

func (e *Engine) send(sess session.Session, text string) (res gateway.Result) {
	if e.gw == nil {
		return gateway.Failure(gateway.ReasonTransport)
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("gateway panicked")
			res = gateway.Failure(gateway.ReasonTransport)
		}
	}()
	return e.gw.Send(e.lifetime, text, sess)
}

func (e *Engine) scheduleSeedLocked(text string) {
	e.cancelSeedLocked()

	ctx, cancel := context.WithCancel(e.lifetime)
	e.seedCancel = cancel
	gen := e.gen

	e.tasks.add()
	go func() {
		defer e.tasks.done()
		defer cancel()

		timer := time.NewTimer(e.seedDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		if ctx.Err() != nil || gen != e.gen {
			return
		}
		if err := e.acceptingLocked(); err != nil {
			e.log.Warn().Err(err).Msg("seed message dropped")
			return
		}
		e.submitLocked(e.lifetime, text)
	}()
}

func (e *Engine) cancelSeedLocked() {
	if e.seedCancel != nil {
		e.seedCancel()
		e.seedCancel = nil
	}
}
