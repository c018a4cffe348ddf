package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/fallback"
	"github.com/hay-kot/chatwidget/internal/core/locale"
)

// WebhookRequest is the body accepted by the responder stub.
type WebhookRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WebhookResponse is the body returned by the responder stub.
type WebhookResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// Responder is a keyword-driven stand-in for a real responder.
type Responder struct {
	tables map[locale.Tag]*fallback.Resolver
	def    locale.Tag
	log    zerolog.Logger
	now    func() time.Time
}

// DefaultResponderTables returns the built-in keyword tables per language.
func DefaultResponderTables() map[locale.Tag]*fallback.Resolver {
	return map[locale.Tag]*fallback.Resolver{
		"pt": fallback.New("Obrigado por sua mensagem!",
			fallback.Rule{Name: "price", Match: fallback.Keywords("preço", "valor"), Reply: "Nossos planos começam em R$ 99/mês! Entre em contato para mais detalhes."},
			fallback.Rule{Name: "meeting", Match: fallback.Keywords("reunião", "demonstração"), Reply: "Ótimo! Vou conectar você com nossa equipe. Use o botão do WhatsApp para continuar."},
			fallback.Rule{Name: "how", Match: fallback.Keywords("funciona"), Reply: "Nosso sistema funciona através de IA avançada que entende suas necessidades e responde de forma natural!"},
		),
		"en": fallback.New("Thanks for your message!",
			fallback.Rule{Name: "price", Match: fallback.Keywords("price", "cost"), Reply: "Our plans start at $19/month! Get in touch for more details."},
			fallback.Rule{Name: "meeting", Match: fallback.Keywords("meeting", "demo"), Reply: "Great! I'll connect you with our team. Use the WhatsApp button to continue."},
			fallback.Rule{Name: "how", Match: fallback.Keywords("work"), Reply: "Our system uses advanced AI that understands your needs and answers naturally!"},
		),
		"es": fallback.New("¡Gracias por tu mensaje!",
			fallback.Rule{Name: "price", Match: fallback.Keywords("precio", "valor"), Reply: "¡Nuestros planes empiezan en US$ 19/mes! Contáctanos para más detalles."},
			fallback.Rule{Name: "meeting", Match: fallback.Keywords("reunión", "demostración"), Reply: "¡Genial! Te conecto con nuestro equipo. Usa el botón de WhatsApp para continuar."},
			fallback.Rule{Name: "how", Match: fallback.Keywords("funciona"), Reply: "¡Nuestro sistema usa IA avanzada que entiende tus necesidades y responde de forma natural!"},
		),
	}
}

// NewResponder creates a responder. Requests in languages without a table use def.
func NewResponder(tables map[locale.Tag]*fallback.Resolver, def locale.Tag, log zerolog.Logger) *Responder {
	if tables == nil {
		tables = DefaultResponderTables()
	}
	return &Responder{tables: tables, def: def, log: log, now: time.Now}
}

// Reply returns the canned reply for message in language.
func (rs *Responder) Reply(message, language string) string {
	table, ok := rs.tables[locale.Normalize(language)]
	if !ok {
		table = rs.tables[rs.def]
	}
	if table == nil {
		return ""
	}
	return table.Resolve(message)
}

// ServeHTTP handles POST /api/webhook.
func (rs *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	rs.log.Info().
		Str("session_id", req.SessionID).
		Str("language", req.Language).
		Int("length", len(req.Message)).
		Msg("webhook message received")

	respondJSON(w, http.StatusOK, WebhookResponse{
		Response:  rs.Reply(req.Message, req.Language),
		SessionID: req.SessionID,
		Timestamp: rs.now().UTC().Format(time.RFC3339Nano),
	})
}
