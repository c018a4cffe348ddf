package commands

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   BatchInput
		wantErr string
	}{
		{
			name:    "empty conversations",
			input:   BatchInput{Conversations: []BatchConversation{}},
			wantErr: "conversations",
		},
		{
			name: "missing name",
			input: BatchInput{Conversations: []BatchConversation{
				{Messages: []string{"oi"}},
			}},
			wantErr: "name",
		},
		{
			name: "whitespace name",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "   ", Messages: []string{"oi"}},
			}},
			wantErr: "name",
		},
		{
			name: "duplicate names",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "test", Messages: []string{"oi"}},
				{Name: "test", Messages: []string{"oi"}},
			}},
			wantErr: "duplicate",
		},
		{
			name: "unsupported language",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "fr", Language: "fr", Messages: []string{"bonjour"}},
			}},
			wantErr: "unsupported language",
		},
		{
			name: "no messages",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "empty"},
			}},
			wantErr: "messages",
		},
		{
			name: "blank message",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "blank", Messages: []string{"oi", "  "}},
			}},
			wantErr: "messages[1]",
		},
		{
			name: "valid input",
			input: BatchInput{Conversations: []BatchConversation{
				{Name: "pricing", Messages: []string{"Quais são os preços?"}},
				{Name: "demo", Language: "en-US", Messages: []string{"hi", "I want a demo"}},
			}},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBatchInput_JSON(t *testing.T) {
	jsonInput := `{
		"conversations": [
			{"name": "pricing", "messages": ["Olá", "Quais são os preços?"]},
			{"name": "demo", "language": "en", "messages": ["I want a demo"]}
		]
	}`

	var input BatchInput
	require.NoError(t, json.Unmarshal([]byte(jsonInput), &input))

	require.Len(t, input.Conversations, 2)
	assert.Equal(t, "pricing", input.Conversations[0].Name)
	assert.Empty(t, input.Conversations[0].Language)
	assert.Equal(t, []string{"Olá", "Quais são os preços?"}, input.Conversations[0].Messages)
	assert.Equal(t, "en", input.Conversations[1].Language)
}

func TestBatchCmd_RunsConversationsWithFallback(t *testing.T) {
	flags := testFlags(t)
	cmd := NewBatchCmd(flags)
	cmd.stdin = strings.NewReader(`{"conversations": [
		{"name": "pricing", "messages": ["Quais são os preços?"]},
		{"name": "demo", "language": "en", "messages": ["hello", "can I get a demo"]}
	]}`)

	out, _, err := runCmd(t, cmd, "batch")
	require.NoError(t, err)

	var output BatchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))

	assert.Len(t, output.BatchID, 6)
	assert.FileExists(t, output.LogFile)
	require.Len(t, output.Results, 2)

	pricing := output.Results[0]
	assert.Equal(t, StatusCompleted, pricing.Status)
	assert.NotEmpty(t, pricing.SessionID)
	require.Len(t, pricing.Transcript, 3)
	assert.Equal(t, BatchTurn{Sender: "bot", Text: "👋 Olá! Como posso ajudar?"}, pricing.Transcript[0])
	assert.Equal(t, BatchTurn{Sender: "user", Text: "Quais são os preços?"}, pricing.Transcript[1])
	assert.Contains(t, pricing.Transcript[2].Text, "Temos diferentes planos")

	demo := output.Results[1]
	assert.Equal(t, StatusCompleted, demo.Status)
	require.Len(t, demo.Transcript, 5)
	assert.Contains(t, demo.Transcript[2].Text, "How about continuing on WhatsApp?")
	assert.Contains(t, demo.Transcript[4].Text, "connect you with our team")

	// batch conversations are never persisted
	entries, err := flags.Store.List(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBatchCmd_UsesWebhook(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Webhook.URL = webhook(t, func(msg string) string { return "echo: " + msg }).URL

	cmd := NewBatchCmd(flags)
	cmd.stdin = strings.NewReader(`{"conversations": [{"name": "echo", "messages": ["a", "b"]}]}`)

	out, _, err := runCmd(t, cmd, "batch")
	require.NoError(t, err)

	var output BatchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	require.Len(t, output.Results, 1)

	texts := make([]string, 0, len(output.Results[0].Transcript))
	for _, turn := range output.Results[0].Transcript {
		texts = append(texts, turn.Text)
	}
	assert.Equal(t, []string{"👋 Olá! Como posso ajudar?", "a", "echo: a", "b", "echo: b"}, texts)
}

func TestBatchCmd_ReadsFile(t *testing.T) {
	flags := testFlags(t)
	path := flags.DataDir + "/input.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"conversations": [{"name": "one", "messages": ["oi"]}]}`), 0o644))

	out, _, err := runCmd(t, NewBatchCmd(flags), "batch", "-f", path)
	require.NoError(t, err)

	var output BatchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	require.Len(t, output.Results, 1)
	assert.Equal(t, StatusCompleted, output.Results[0].Status)
}

func TestBatchCmd_InvalidInput(t *testing.T) {
	flags := testFlags(t)
	cmd := NewBatchCmd(flags)
	cmd.stdin = strings.NewReader(`{"conversations": []}`)

	out, _, err := runCmd(t, cmd, "batch")
	require.Error(t, err)

	var output BatchErrorOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.Contains(t, output.Error, "invalid input")
}

func TestBatchOutput_JSON(t *testing.T) {
	output := BatchOutput{
		BatchID: "abc123",
		LogFile: "/tmp/batch-abc123.log",
		Results: []BatchResult{
			{Name: "one", SessionID: "session_1", Status: StatusCompleted, Transcript: []BatchTurn{{Sender: "bot", Text: "hi"}}},
			{Name: "two", Status: StatusFailed, Error: "wait for reply: context deadline exceeded"},
			{Name: "three", Status: StatusSkipped},
		},
	}

	data, err := json.Marshal(output)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	results := parsed["results"].([]any)
	require.Len(t, results, 3)

	skipped := results[2].(map[string]any)
	assert.NotContains(t, skipped, "session_id")
	assert.NotContains(t, skipped, "transcript")
	assert.NotContains(t, skipped, "error")
}

func TestCountByStatus(t *testing.T) {
	results := []BatchResult{
		{Status: StatusCompleted},
		{Status: StatusFailed},
		{Status: StatusCompleted},
		{Status: StatusSkipped},
	}

	assert.Equal(t, 2, countByStatus(results, StatusCompleted))
	assert.Equal(t, 1, countByStatus(results, StatusFailed))
	assert.Equal(t, 1, countByStatus(results, StatusSkipped))
	assert.Equal(t, 0, countByStatus(nil, StatusCompleted))
}
