package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Inbound frame types.
const (
	FrameOpen       = "open"
	FrameSubmit     = "submit"
	FrameQuickReply = "quick_reply"
	FrameClose      = "close"
	FrameEscalate   = "escalate"
	FrameClear      = "clear"
)

// Outbound frame types.
const (
	FrameMessage  = "message"
	FrameState    = "state"
	FrameToggle   = "toggle"
	FrameError    = "error"
	FrameSnapshot = "snapshot"
)

// Error codes sent to clients. Raw error text never leaves the server.
const (
	CodeBusy        = "busy"
	CodeClosed      = "closed"
	CodeUnavailable = "quick_reply_unavailable"
	CodeIndex       = "quick_reply_index"
	CodeEscalation  = "escalation_unavailable"
	CodeBadFrame    = "bad_frame"
	CodeInternal    = "internal"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// InFrame is a message from the host page.
type InFrame struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	Index          int    `json:"index,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty"`
	Language       string `json:"language,omitempty"`
}

// OutFrame is a message to the host page.
type OutFrame struct {
	Type         string                 `json:"type"`
	State        string                 `json:"state,omitempty"`
	Message      *conversation.Message  `json:"message,omitempty"`
	Open         *bool                  `json:"open,omitempty"`
	URL          string                 `json:"url,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ClientID     string                 `json:"clientId,omitempty"`
	SessionID    string                 `json:"sessionId,omitempty"`
	Messages     []conversation.Message `json:"messages,omitempty"`
	QuickReplies []string               `json:"quickReplies,omitempty"`
}

// EngineFactory builds the engine for one connection. store is already scoped
// to the connecting client and may be nil.
type EngineFactory func(store kv.Store) *engine.Engine

// Bridge serves GET /api/widget/ws, driving one engine per connection.
type Bridge struct {
	newEngine EngineFactory
	store     kv.Store
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewBridge creates a bridge. Clients identify themselves with ?client=<id>
// to resume their conversation; store is scoped per client.
func NewBridge(factory EngineFactory, store kv.Store, origins originMatcher, log zerolog.Logger) *Bridge {
	return &Bridge{
		newEngine: factory,
		store:     store,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.allows(origin)
			},
		},
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	} else if !clientIDPattern.MatchString(clientID) {
		respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	log := b.log.With().Str("client_id", clientID).Logger()
	c := &connection{
		conn:     conn,
		clientID: clientID,
		send:     make(chan OutFrame, sendBuffer),
		done:     make(chan struct{}),
		log:      log,
	}
	c.engine = b.newEngine(kv.WithPrefix(b.store, "client:"+clientID+":"))
	c.engine.Subscribe(c)

	log.Debug().Msg("widget connected")
	c.run(r.Context())
	log.Debug().Msg("widget disconnected")
}

type connection struct {
	conn     *websocket.Conn
	engine   *engine.Engine
	clientID string
	send     chan OutFrame
	done     chan struct{}
	once     sync.Once
	log      zerolog.Logger

	// ids carried by the last snapshot; their message frames are skipped
	mu      sync.Mutex
	snapped map[string]struct{}
}

func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)

	c.engine.Shutdown()
	c.stop()
	wg.Wait()
	_ = c.conn.Close()
}

func (c *connection) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *connection) readLoop(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in InFrame
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(ctx, in)
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ctx.Done():
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Warn().Err(err).Msg("websocket write")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *connection) push(f OutFrame) {
	select {
	case c.send <- f:
	case <-c.done:
	}
}

func (c *connection) handle(ctx context.Context, in InFrame) {
	var err error

	switch in.Type {
	case FrameOpen:
		// the snapshot follows the toggle notification
		err = c.engine.Open(ctx, engine.Activation{
			InitialMessage: in.InitialMessage,
			Language:       locale.Normalize(in.Language),
		})
	case FrameSubmit:
		err = c.engine.Submit(ctx, in.Text)
	case FrameQuickReply:
		err = c.engine.SelectQuickReply(ctx, in.Index)
	case FrameClose:
		err = c.engine.Close()
	case FrameEscalate:
		// the URL reaches the client through OnEscalate
		_, err = c.engine.Escalate(ctx)
	case FrameClear:
		err = c.engine.ClearHistory(ctx)
		if err == nil {
			c.push(c.snapshot())
		}
	default:
		c.push(OutFrame{Type: FrameError, Error: CodeBadFrame})
		return
	}

	if err != nil {
		c.log.Debug().Err(err).Str("frame", in.Type).Msg("frame rejected")
		c.push(OutFrame{Type: FrameError, Error: errorCode(err)})
	}
}

// snapshot reads the engine once and remembers which messages the frame
// carries.
func (c *connection) snapshot() OutFrame {
	snap := c.engine.Snapshot()

	ids := make(map[string]struct{}, len(snap.Messages))
	for _, m := range snap.Messages {
		ids[m.ID] = struct{}{}
	}
	c.mu.Lock()
	c.snapped = ids
	c.mu.Unlock()

	return OutFrame{
		Type:         FrameSnapshot,
		State:        snap.State.String(),
		ClientID:     c.clientID,
		SessionID:    snap.Session.ID,
		Messages:     snap.Messages,
		QuickReplies: snap.QuickReplies,
	}
}

func (c *connection) delivered(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snapped[id]
	return ok
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrBusy):
		return CodeBusy
	case errors.Is(err, engine.ErrClosed), errors.Is(err, engine.ErrShutdown):
		return CodeClosed
	case errors.Is(err, engine.ErrQuickReplyUnavailable):
		return CodeUnavailable
	case errors.Is(err, engine.ErrQuickReplyIndex):
		return CodeIndex
	case errors.Is(err, escalation.ErrNoRecipient):
		return CodeEscalation
	default:
		return CodeInternal
	}
}

// Listener implementation; called off the engine lock.

func (c *connection) OnStateChange(_, to engine.State) {
	c.push(OutFrame{Type: FrameState, State: to.String(), QuickReplies: c.engine.QuickReplies()})
}

func (c *connection) OnMessage(msg conversation.Message) {
	if c.delivered(msg.ID) {
		return
	}
	c.push(OutFrame{Type: FrameMessage, Message: &msg})
}

// OnToggle sends the snapshot on open. Snapshot blocks until Open has
// returned, so it includes the welcome message queued after this toggle.
func (c *connection) OnToggle(open bool) {
	c.push(OutFrame{Type: FrameToggle, Open: &open})
	if open {
		c.push(c.snapshot())
	}
}

func (c *connection) OnEscalate(url string) {
	c.push(OutFrame{Type: FrameEscalate, URL: url})
}

func (c *connection) OnQuickReply(string) {}
