package commands

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/conversation"
	"github.com/hay-kot/chatwidget/internal/core/kv"
)

const (
	currentSession  = "session_1716000000000_aaaaaaaaa"
	detachedSession = "session_1715000000000_bbbbbbbbb"
	clientSession   = "session_1717000000000_ccccccccc"
)

func seedHistory(t *testing.T, flags *Flags) {
	t.Helper()
	ctx := t.Context()

	put := func(key string, texts ...string) {
		msgs := make([]conversation.Message, 0, len(texts))
		for i, text := range texts {
			sender := conversation.SenderUser
			if i%2 == 0 {
				sender = conversation.SenderBot
			}
			msgs = append(msgs, conversation.NewMessage(sender, text, time.Now()))
		}
		data, err := json.Marshal(msgs)
		require.NoError(t, err)
		require.NoError(t, flags.Store.Set(ctx, key, string(data)))
	}

	put(kv.MessagesKey(currentSession), "Olá!", "preço", "Temos planos")
	put(kv.MessagesKey(detachedSession), "Olá!")
	require.NoError(t, flags.Store.Set(ctx, kv.SessionKey, currentSession))

	put("client:web1:"+kv.MessagesKey(clientSession), "Hi!", "from the browser")
	require.NoError(t, flags.Store.Set(ctx, "client:web1:"+kv.SessionKey, clientSession))
}

func TestHistoryCmd_List(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	out, _, err := runCmd(t, NewHistoryCmd(flags), "history", "ls")
	require.NoError(t, err)

	assert.Contains(t, out, "SCOPE")
	assert.Contains(t, out, currentSession)
	assert.Contains(t, out, detachedSession)
	assert.Contains(t, out, "client:web1")
	assert.Contains(t, out, "detached")
}

func TestHistoryCmd_ListMatch(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	out, _, err := runCmd(t, NewHistoryCmd(flags), "history", "ls", "--match", "client:*:*")
	require.NoError(t, err)
	assert.Contains(t, out, clientSession)
	assert.NotContains(t, out, currentSession)

	_, _, err = runCmd(t, NewHistoryCmd(flags), "history", "ls", "--match", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --match")
}

func TestHistoryCmd_ShowCurrent(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	out, _, err := runCmd(t, NewHistoryCmd(flags), "history", "show", "--format", "json")
	require.NoError(t, err)

	var got struct {
		SessionID string                 `json:"session_id"`
		Messages  []conversation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, currentSession, got.SessionID)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "preço", got.Messages[1].Text)
}

func TestHistoryCmd_ShowClient(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	out, _, err := runCmd(t, NewHistoryCmd(flags), "history", "show", "--client", "web1")
	require.NoError(t, err)
	assert.Contains(t, out, clientSession)
	assert.Contains(t, out, "from the browser")
}

func TestHistoryCmd_ShowMissing(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	_, _, err := runCmd(t, NewHistoryCmd(flags), "history", "show", "session_0_zzzzzzzzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHistoryCmd_ClearCurrentForgetsSession(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)
	ctx := t.Context()

	_, msgs, err := runCmd(t, NewHistoryCmd(flags), "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, msgs, "Cleared conversation "+currentSession)

	_, err = flags.Store.Get(ctx, kv.MessagesKey(currentSession))
	assert.True(t, errors.Is(err, kv.ErrKeyNotFound))
	_, err = flags.Store.Get(ctx, kv.SessionKey)
	assert.True(t, errors.Is(err, kv.ErrKeyNotFound))

	// other conversations are left alone
	_, err = flags.Store.Get(ctx, kv.MessagesKey(detachedSession))
	require.NoError(t, err)
	_, err = flags.Store.Get(ctx, "client:web1:"+kv.SessionKey)
	require.NoError(t, err)
}

func TestHistoryCmd_ClearAll(t *testing.T) {
	flags := testFlags(t)
	seedHistory(t, flags)

	_, msgs, err := runCmd(t, NewHistoryCmd(flags), "history", "clear", "--all")
	require.NoError(t, err)
	assert.Contains(t, msgs, "Cleared 3 conversation(s)")

	entries, err := flags.Store.List(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilterRecords(t *testing.T) {
	records := []conversation.Record{
		{SessionID: currentSession},
		{Scope: "client:web1:", SessionID: clientSession},
	}

	assert.Len(t, filterRecords(records, ""), 2)
	assert.Equal(t, []conversation.Record{records[0]}, filterRecords(records, "session_1716*"))
	assert.Equal(t, []conversation.Record{records[1]}, filterRecords(records, "client:web1:*"))
	assert.Empty(t, filterRecords(records, "nothing*"))
}
