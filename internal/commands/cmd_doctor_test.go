package commands

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_JSONHealthy(t *testing.T) {
	flags := testFlags(t)

	out, _, err := runCmd(t, NewDoctorCmd(flags), "doctor", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Healthy bool `json:"healthy"`
		Failed  int  `json:"failed"`
		Checks  []struct {
			Name string `json:"name"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Healthy)
	assert.Zero(t, got.Failed)

	names := make([]string, 0, len(got.Checks))
	for _, c := range got.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Configuration", "Storage", "Responder", "Stored Conversations"}, names)
}

func TestDoctorCmd_TextFailure(t *testing.T) {
	flags := testFlags(t)
	flags.Config.Language = "xx"

	_, msgs, err := runCmd(t, NewDoctorCmd(flags), "doctor")
	require.Error(t, err)
	assert.Contains(t, msgs, "Configuration")
	assert.Contains(t, msgs, "language")
	assert.NotContains(t, msgs, " 0 failed")
}

func TestDoctorCmd_StoreOpenError(t *testing.T) {
	flags := testFlags(t)
	flags.Store = nil
	flags.StoreErr = errors.New("database is locked")

	_, msgs, err := runCmd(t, NewDoctorCmd(flags), "doctor")
	require.Error(t, err)
	assert.Contains(t, msgs, "database is locked")
}

func TestDoctorCmd_RejectsFormat(t *testing.T) {
	_, _, err := runCmd(t, NewDoctorCmd(testFlags(t)), "doctor", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported --format")
}
