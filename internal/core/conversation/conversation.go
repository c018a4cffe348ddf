// Package conversation holds the ordered message log of one session and its
// write-through persistence.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ErrDuplicateID is returned when appending a message whose id is already present.
var ErrDuplicateID = errors.New("duplicate message id")

// Message is a single entry in a conversation. Messages are immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a time-ordered id.
func NewMessage(sender Sender, text string, now time.Time) Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Message{ID: id.String(), Text: text, Sender: sender, Timestamp: now}
}

// Store is the in-memory conversation with optional write-through persistence.
// The zero value is not usable; construct with New.
type Store struct {
	mu        sync.RWMutex
	kv        kv.Store
	persist   bool
	sessionID string
	messages  []Message
	ids       map[string]struct{}
	log       zerolog.Logger
}

// New creates an empty store. Persistence is enabled only when persist is set
// and backend is non-nil.
func New(backend kv.Store, persist bool, log zerolog.Logger) *Store {
	return &Store{
		kv:      backend,
		persist: persist && backend != nil,
		ids:     make(map[string]struct{}),
		log:     log,
	}
}

// Persistent reports whether appends are written through to storage.
func (s *Store) Persistent() bool { return s.persist }

// SessionID returns the session the store currently writes under.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Bind sets the session the store writes under without touching messages.
func (s *Store) Bind(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

// Append adds msg to the end of the conversation. With persistence enabled the
// whole sequence is written before returning; a write failure is returned but
// the in-memory append stands.
func (s *Store) Append(ctx context.Context, msg Message) error {
	s.mu.Lock()
	if _, ok := s.ids[msg.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("append %s: %w", msg.ID, ErrDuplicateID)
	}
	s.messages = append(s.messages, msg)
	s.ids[msg.ID] = struct{}{}

	if !s.persist || s.sessionID == "" {
		s.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(s.messages)
	sessionID := s.sessionID
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	if err := s.kv.Set(ctx, kv.MessagesKey(sessionID), string(data)); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("persist conversation")
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// Load replaces the in-memory sequence with the stored one for sessionID and
// binds the store to it. Missing or unreadable data yields an empty sequence.
func (s *Store) Load(ctx context.Context, sessionID string) []Message {
	loaded := s.read(ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.messages = loaded
	s.ids = make(map[string]struct{}, len(loaded))
	for _, m := range loaded {
		s.ids[m.ID] = struct{}{}
	}
	return append([]Message(nil), loaded...)
}

func (s *Store) read(ctx context.Context, sessionID string) []Message {
	if !s.persist {
		return nil
	}

	entry, err := s.kv.Get(ctx, kv.MessagesKey(sessionID))
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("read stored conversation")
		}
		return nil
	}

	msgs, err := Decode([]byte(entry.Value))
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("discarding unreadable conversation")
		return nil
	}
	return msgs
}

// Clear empties the in-memory sequence. With persistence enabled it also
// deletes the conversation record and the session id record; a non-persistent
// store leaves records written by earlier runs alone.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.sessionID = ""
	s.mu.Unlock()

	if !s.persist {
		return nil
	}

	var errs []error
	for _, key := range []string{kv.MessagesKey(sessionID), kv.SessionKey} {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Messages returns a copy of the conversation in order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Decode parses a stored conversation. Messages missing an id are rejected so a
// truncated or foreign record is not mistaken for history.
func Decode(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	for i, m := range msgs {
		if m.ID == "" {
			return nil, fmt.Errorf("decode conversation: message %d has no id", i)
		}
	}
	return msgs, nil
}
