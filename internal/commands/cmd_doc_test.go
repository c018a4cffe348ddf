package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocCmd_Webhook(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Webhook.URL = "https://example.com/hook"

	out, _, err := runCmd(t, NewDocCmd(flags), "doc", "webhook")
	require.NoError(t, err)
	assert.Contains(t, out, "Configured URL: https://example.com/hook")
	assert.Contains(t, out, `"sessionId"`)
}

func TestDocCmd_Bridge(t *testing.T) {
	flags := testFlags(t)

	out, _, err := runCmd(t, NewDocCmd(flags), "doc", "bridge")
	require.NoError(t, err)
	assert.Contains(t, out, "ws://<host>:3000/api/widget/ws?client=<id>")
	assert.Contains(t, out, "| quick_reply | index |")
	assert.Contains(t, out, "| snapshot | clientId, sessionId, state, messages, quickReplies |")
	assert.Contains(t, out, "- quick_reply_unavailable")
}
