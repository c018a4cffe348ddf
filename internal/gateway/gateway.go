// Package gateway performs the single-attempt exchange with the remote
// responder and normalizes its outcome.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/session"
)

// Kind classifies a gateway outcome.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Failure reasons.
const (
	ReasonStatus     = "status"
	ReasonTransport  = "transport"
	ReasonTimeout    = "timeout"
	ReasonEmptyReply = "empty_reply"
	ReasonCancelled  = "cancelled"
	ReasonEncode     = "encode"
)

// Default timings.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultTypingDelay = 1500 * time.Millisecond
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Result is the normalized outcome of one exchange.
type Result struct {
	Kind   Kind
	Text   string
	Reason string
}

// OK reports whether the exchange produced a reply.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Success builds a successful result.
func Success(text string) Result { return Result{Kind: KindSuccess, Text: text} }

// Failure builds a failed result.
func Failure(reason string) Result { return Result{Kind: KindFailure, Reason: reason} }

// Gateway sends one utterance to the responder. Implementations never return
// errors; every problem is reported as a failure Result.
type Gateway interface {
	Send(ctx context.Context, utterance string, s session.Session) Result
}

// Request is the JSON body posted to the responder.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Options configures an HTTPGateway.
type Options struct {
	URL         string
	Timeout     time.Duration // 0 disables the request timeout
	TypingDelay time.Duration
	Headers     map[string]string
	Client      *http.Client
	Logger      zerolog.Logger
}

// HTTPGateway posts utterances to a webhook URL.
type HTTPGateway struct {
	url         string
	timeout     time.Duration
	typingDelay time.Duration
	headers     map[string]string
	client      *http.Client
	log         zerolog.Logger
	now         func() time.Time
}

// NewHTTP creates a gateway for opts.URL.
func NewHTTP(opts Options) *HTTPGateway {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &HTTPGateway{
		url:         opts.URL,
		timeout:     opts.Timeout,
		typingDelay: opts.TypingDelay,
		headers:     headers,
		client:      client,
		log:         opts.Logger,
		now:         time.Now,
	}
}

// Send performs the exchange, then holds the result for the typing delay.
func (g *HTTPGateway) Send(ctx context.Context, utterance string, s session.Session) Result {
	res := g.call(ctx, utterance, s)

	g.log.Debug().
		Str("session_id", s.ID).
		Str("kind", string(res.Kind)).
		Str("reason", res.Reason).
		Msg("responder exchange finished")

	if g.typingDelay <= 0 {
		return res
	}

	timer := time.NewTimer(g.typingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return res
	case <-ctx.Done():
		return Failure(ReasonCancelled)
	}
}

func (g *HTTPGateway) call(ctx context.Context, utterance string, s session.Session) Result {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	body, err := json.Marshal(Request{
		Message:   utterance,
		SessionID: s.ID,
		Language:  string(s.Language),
		Timestamp: g.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		g.log.Error().Err(err).Msg("encode responder request")
		return Failure(ReasonEncode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		g.log.Warn().Err(err).Str("url", g.url).Msg("build responder request")
		return Failure(ReasonTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.transportFailure(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Warn().Int("status", resp.StatusCode).Str("url", g.url).Msg("responder returned non-success status")
		return Failure(ReasonStatus)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return g.transportFailure(ctx, err)
	}

	reply := ExtractReply(raw)
	if reply == "" {
		return Failure(ReasonEmptyReply)
	}
	return Success(reply)
}

func (g *HTTPGateway) transportFailure(ctx context.Context, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.log.Warn().Dur("timeout", g.timeout).Msg("responder timed out")
		return Failure(ReasonTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return Failure(ReasonCancelled)
	}
	g.log.Warn().Err(err).Str("url", g.url).Msg("responder unreachable")
	return Failure(ReasonTransport)
}

// ExtractReply picks the reply text out of a responder body. JSON bodies are
// probed for output.response, response, then a string output; anything that is
// not JSON is used verbatim.
func ExtractReply(body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return raw
	}

	if out, ok := payload["output"].(map[string]any); ok {
		if s := stringField(out, "response"); s != "" {
			return s
		}
	}
	if s := stringField(payload, "response"); s != "" {
		return s
	}
	if s := stringField(payload, "output"); s != "" {
		return s
	}
	// Deliberate: a 2xx JSON body without a reply field, even {"error":"x"},
	// is shown as-is. Error bodies are expected on non-2xx statuses, which
	// get the fallback reply instead.
	return raw
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
