package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// Record describes one stored conversation.
type Record struct {
	// Scope is the key prefix the conversation lives under, empty for the
	// terminal host and "client:<id>:" for bridged clients.
	Scope     string
	SessionID string
	Key       string
	Messages  []Message
	// Current reports whether the scope's session key points at this conversation.
	Current   bool
	UpdatedAt time.Time
	// Err is set when the stored value could not be decoded.
	Err error
}

// Scan lists every stored conversation, sorted by scope and then by most
// recent update.
func Scan(ctx context.Context, store kv.Store) ([]Record, error) {
	entries, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	current := make(map[string]string)
	for _, e := range entries {
		if scope, ok := strings.CutSuffix(e.Key, kv.SessionKey); ok {
			current[scope] = e.Value
		}
	}

	var records []Record
	for _, e := range entries {
		idx := strings.LastIndex(e.Key, kv.MessagesKeyPrefix)
		if idx < 0 {
			continue
		}

		rec := Record{
			Scope:     e.Key[:idx],
			SessionID: e.Key[idx+len(kv.MessagesKeyPrefix):],
			Key:       e.Key,
			UpdatedAt: e.UpdatedAt,
		}
		rec.Current = current[rec.Scope] == rec.SessionID
		rec.Messages, rec.Err = Decode([]byte(e.Value))
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Scope != records[j].Scope {
			return records[i].Scope < records[j].Scope
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// Remove deletes a stored conversation and, when it is the current one, the
// scope's session key.
func Remove(ctx context.Context, store kv.Store, rec Record) error {
	var errs []error
	if err := store.Delete(ctx, rec.Key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		errs = append(errs, err)
	}
	if rec.Current {
		if err := store.Delete(ctx, rec.Scope+kv.SessionKey); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
