package commands

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/config"
)

func TestConfigCmd_ValidateJSON(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Escalation.Recipient = "5511999999999"

	out, _, err := runCmd(t, NewConfigCmd(flags), "config", "validate", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Valid    bool                       `json:"valid"`
		Warnings []config.ValidationWarning `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Valid)

	items := make([]string, 0, len(got.Warnings))
	for _, w := range got.Warnings {
		items = append(items, w.Item)
	}
	assert.Contains(t, items, "webhook.url")
	assert.NotContains(t, items, "escalation.recipient")
}

func TestConfigCmd_ValidateJSONInvalid(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Webhook.URL = "ftp://example.com"
	flags.Config.Storage.Driver = "floppy"

	out, _, err := runCmd(t, NewConfigCmd(flags), "config", "validate", "--format", "json")
	require.Error(t, err)

	var got struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Valid)

	fields := make([]string, 0, len(got.Errors))
	for _, e := range got.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"webhook.url", "storage.driver"}, fields)
}

func TestConfigCmd_ValidateText(t *testing.T) {
	flags := testFlags(t)

	_, msgs, err := runCmd(t, NewConfigCmd(flags), "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, msgs, "Configuration is valid")
	assert.Contains(t, msgs, "escalation.recipient")
}

func TestConfigCmd_InitDefaults(t *testing.T) {
	flags := testFlags(t)

	_, msgs, err := runCmd(t, NewConfigCmd(flags), "config", "init", "--yes")
	require.NoError(t, err)
	assert.Contains(t, msgs, "Configuration written")

	cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
	require.NoError(t, err)
	assert.Equal(t, "pt", cfg.Language)
	assert.Equal(t, config.StorageJSONFile, cfg.Storage.Driver)
	assert.True(t, cfg.Persist)
}

func TestConfigCmd_InitForm(t *testing.T) {
	flags := testFlags(t)
	cmd := NewConfigCmd(flags)
	cmd.form = func(a *InitAnswers) error {
		assert.Equal(t, "pt", a.Language, "form starts from the defaults")
		a.BotName = "  Ana  "
		a.Language = "es"
		a.Webhook = "https://example.com/hook"
		a.Recipient = "5511999999999"
		a.Storage = config.StorageSQLite
		a.Analytics = true
		return nil
	}

	_, _, err := runCmd(t, cmd, "config", "init")
	require.NoError(t, err)

	cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
	require.NoError(t, err)
	assert.Equal(t, "Ana", cfg.BotName)
	assert.Equal(t, "es", cfg.Language)
	assert.Equal(t, "https://example.com/hook", cfg.Webhook.URL)
	assert.Equal(t, "5511999999999", cfg.Escalation.Recipient)
	assert.Equal(t, config.StorageSQLite, cfg.Storage.Driver)
	assert.True(t, cfg.Analytics.Enabled)
}

func TestConfigCmd_InitFormError(t *testing.T) {
	flags := testFlags(t)
	cmd := NewConfigCmd(flags)
	cmd.form = func(*InitAnswers) error { return errors.New("user aborted") }

	_, _, err := runCmd(t, cmd, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user aborted")
	assert.NoFileExists(t, flags.ConfigPath)
}

func TestConfigCmd_InitRefusesOverwrite(t *testing.T) {
	flags := testFlags(t)
	require.NoError(t, os.WriteFile(flags.ConfigPath, []byte("language: en\n"), 0o644))

	_, _, err := runCmd(t, NewConfigCmd(flags), "config", "init", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCmd(t, NewConfigCmd(flags), "config", "init", "--yes", "--force")
	require.NoError(t, err)
}

func TestInitValidators(t *testing.T) {
	assert.NoError(t, optionalURL(""))
	assert.NoError(t, optionalURL("https://example.com/hook"))
	assert.Error(t, optionalURL("example.com"))
	assert.Error(t, optionalURL("ftp://example.com"))

	assert.NoError(t, digitsOnly(""))
	assert.NoError(t, digitsOnly("5511999999999"))
	assert.Error(t, digitsOnly("+55 11 99999"))
}
