// Package session defines the widget session and the manager that creates or
// restores its identifier.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/pkg/randid"
)

// suffixLength gives 36^9 (~1e14) suffixes per millisecond.
const suffixLength = 9

// Session is one continuous conversational context.
type Session struct {
	ID        string     `json:"id"`
	Language  locale.Tag `json:"language"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewID synthesizes an identifier from a creation timestamp and a random suffix.
func NewID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), randid.Generate(suffixLength))
}

// CreatedAtFromID recovers the creation time encoded in an id produced by NewID.
func CreatedAtFromID(id string) (time.Time, bool) {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 || parts[0] != "session" {
		return time.Time{}, false
	}
	var ms int64
	if _, err := fmt.Sscanf(parts[1], "%d", &ms); err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Manager creates or restores session identifiers.
type Manager struct {
	store kv.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewManager creates a manager. store may be nil, in which case ids are never durable.
func NewManager(store kv.Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log, now: time.Now}
}

// Obtain returns the persisted id when persist is set and one exists; otherwise a
// new id, stored for later when persist is set. Storage failures degrade silently
// to a non-durable id.
func (m *Manager) Obtain(ctx context.Context, persist bool) string {
	if !persist || m.store == nil {
		return NewID(m.now())
	}

	entry, err := m.store.Get(ctx, kv.SessionKey)
	switch {
	case err == nil && entry.Value != "":
		return entry.Value
	case err != nil && !errors.Is(err, kv.ErrKeyNotFound):
		m.log.Warn().Err(err).Msg("read stored session id, starting a new one")
	}

	id := NewID(m.now())
	if err := m.store.Set(ctx, kv.SessionKey, id); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session id will not survive restart")
	}
	return id
}

// Forget removes the stored session id. A missing id is not an error.
func (m *Manager) Forget(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, kv.SessionKey); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("delete session id: %w", err)
	}
	return nil
}
