package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/session"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/gateway"
	"github.com/hay-kot/chatwidget/internal/store/memory"
)

type echoGateway struct{}

func (echoGateway) Send(_ context.Context, text string, _ session.Session) gateway.Result {
	return gateway.Success("echo: " + text)
}

func newTestServer(t *testing.T, store kv.Store) *httptest.Server {
	t.Helper()
	srv := New(Options{
		AllowedOrigins: []string{"https://example.com"},
		Store:          store,
		Engines: func(scoped kv.Store) *engine.Engine {
			return engine.New(engine.Options{
				Gateway:    echoGateway{},
				Store:      scoped,
				Persist:    scoped != nil,
				SeedDelay:  time.Millisecond,
				Escalation: escalation.Builder{Recipient: "5527999999999"},
				Logger:     zerolog.Nop(),
			})
		},
		Logger: zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postWebhook(t *testing.T, url, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(url+"/api/webhook", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestWebhook_Keywords(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		message  string
		language string
		contains string
	}{
		{name: "price", message: "Qual o preço?", contains: "R$ 99/mês"},
		{name: "meeting", message: "Quero uma demonstração", contains: "nossa equipe"},
		{name: "how it works", message: "Como funciona?", contains: "IA avançada"},
		{name: "default", message: "bom dia", contains: "Obrigado por sua mensagem!"},
		{name: "english", message: "what is the price?", language: "en-US", contains: "$19/month"},
		{name: "unknown language uses default", message: "valor?", language: "de", contains: "R$ 99/mês"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(WebhookRequest{Message: tt.message, SessionID: "sid", Language: tt.language})
			require.NoError(t, err)

			resp, out := postWebhook(t, ts.URL, string(body))
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, out["response"], tt.contains)
			assert.Equal(t, "sid", out["sessionId"])
			_, err = time.Parse(time.RFC3339Nano, out["timestamp"])
			assert.NoError(t, err)
		})
	}
}

func TestWebhook_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, body := range []string{"{not json", `{"message":"   "}`, `{}`} {
		resp, out := postWebhook(t, ts.URL, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.NotEmpty(t, out["error"])
	}
}

func TestWebhook_ReplyIsUsableByGateway(t *testing.T) {
	ts := newTestServer(t, nil)
	gw := gateway.NewHTTP(gateway.Options{URL: ts.URL + "/api/webhook", Timeout: time.Second, Logger: zerolog.Nop()})

	res := gw.Send(context.Background(), "Quais são os preços?", session.Session{ID: "sid", Language: "pt"})
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, "Nossos planos começam em R$ 99/mês! Entre em contato para mais detalhes.", res.Text)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/webhook", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	allowed := preflight("https://example.com")
	assert.Equal(t, http.StatusNoContent, allowed.StatusCode)
	assert.Equal(t, "https://example.com", allowed.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, allowed.Header.Get("Access-Control-Allow-Methods"), "POST")

	denied := preflight("https://evil.example")
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}

func TestOriginMatcher(t *testing.T) {
	m := originMatcher{"https://example.com/", "HTTPS://Other.dev"}
	assert.True(t, m.allows("https://example.com"))
	assert.True(t, m.allows("https://other.dev"))
	assert.False(t, m.allows("https://example.org"))
	assert.False(t, m.allows(""))
	assert.True(t, originMatcher{"*"}.allows("https://anything"))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/widget/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(OutFrame) bool) OutFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f OutFrame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func isBotMessage(text string) func(OutFrame) bool {
	return func(f OutFrame) bool {
		return f.Type == FrameMessage && f.Message != nil &&
			f.Message.Sender == conversation.SenderBot && f.Message.Text == text
	}
}

func TestBridge_Conversation(t *testing.T) {
	ts := newTestServer(t, memory.NewKVStore())
	conn := dial(t, ts, "?client=tester")

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameOpen}))
	snap := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameSnapshot })
	assert.Equal(t, "tester", snap.ClientID)
	assert.NotEmpty(t, snap.SessionID)
	require.Len(t, snap.Messages, 1)
	assert.NotEmpty(t, snap.QuickReplies)

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameSubmit, Text: "oi"}))
	readUntil(t, conn, isBotMessage("echo: oi"))

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameQuickReply, Index: 0}))
	errFrame := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameError })
	assert.Equal(t, CodeUnavailable, errFrame.Error)

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameEscalate}))
	esc := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameEscalate })
	assert.True(t, strings.HasPrefix(esc.URL, "https://wa.me/5527999999999?text="))

	require.NoError(t, conn.WriteJSON(InFrame{Type: "bogus"}))
	bad := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameError })
	assert.Equal(t, CodeBadFrame, bad.Error)

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameClose}))
	toggle := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameToggle })
	require.NotNil(t, toggle.Open)
	assert.False(t, *toggle.Open)
}

// readFor collects every frame that arrives within d.
func readFor(t *testing.T, conn *websocket.Conn, d time.Duration) []OutFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))

	var frames []OutFrame
	for {
		var f OutFrame
		if err := conn.ReadJSON(&f); err != nil {
			return frames
		}
		frames = append(frames, f)
	}
}

func TestBridge_OpenSendsWelcomeOnce(t *testing.T) {
	ts := newTestServer(t, memory.NewKVStore())
	conn := dial(t, ts, "?client=once")

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameOpen}))
	frames := readFor(t, conn, 300*time.Millisecond)

	require.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, FrameToggle, frames[0].Type)
	require.Equal(t, FrameSnapshot, frames[1].Type)
	require.Len(t, frames[1].Messages, 1)
	welcome := frames[1].Messages[0].ID

	seen := 0
	for _, f := range frames {
		for _, m := range f.Messages {
			if m.ID == welcome {
				seen++
			}
		}
		if f.Message != nil && f.Message.ID == welcome {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestBridge_SeedAndResume(t *testing.T) {
	store := memory.NewKVStore()
	ts := newTestServer(t, store)

	first := dial(t, ts, "?client=resume")
	require.NoError(t, first.WriteJSON(InFrame{Type: FrameOpen, InitialMessage: "Quero saber sobre preços", Language: "pt-BR"}))
	readUntil(t, first, isBotMessage("echo: Quero saber sobre preços"))
	require.NoError(t, first.Close())

	second := dial(t, ts, "?client=resume")
	require.NoError(t, second.WriteJSON(InFrame{Type: FrameOpen}))
	snap := readUntil(t, second, func(f OutFrame) bool { return f.Type == FrameSnapshot })
	assert.Len(t, snap.Messages, 3)

	require.NoError(t, second.WriteJSON(InFrame{Type: FrameClear}))
	cleared := readUntil(t, second, func(f OutFrame) bool { return f.Type == FrameSnapshot })
	assert.Empty(t, cleared.Messages)
}

func TestBridge_ClosedSubmit(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts, "")

	require.NoError(t, conn.WriteJSON(InFrame{Type: FrameSubmit, Text: "oi"}))
	f := readUntil(t, conn, func(f OutFrame) bool { return f.Type == FrameError })
	assert.Equal(t, CodeClosed, f.Error)
}

func TestBridge_InvalidClientID(t *testing.T) {
	ts := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/widget/ws?client=" + strings.Repeat("x", 80)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
