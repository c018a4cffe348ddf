package escalation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/pkg/executil"
)

func TestBuilder_Build(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		want    string
		wantErr error
	}{
		{
			name:    "defaults",
			builder: Builder{Recipient: "5527999999999"},
			want:    "https://wa.me/5527999999999?text=Ol%C3%A1%21%20Vim%20pelo%20site%20e%20gostaria%20de%20saber%20mais.",
		},
		{
			name:    "custom greeting",
			builder: Builder{Recipient: "1", Greeting: "hi there"},
			want:    "https://wa.me/1?text=hi%20there",
		},
		{
			name: "custom template with session",
			builder: Builder{
				Template:  "https://{{ .Host }}/c/{{ .Recipient }}?s={{ .SessionID }}&l={{ .Language }}",
				Host:      "support.example.com",
				Recipient: "sales",
			},
			want: "https://support.example.com/c/sales?s=session_1_x&l=en",
		},
		{
			name:    "missing recipient",
			builder: Builder{},
			wantErr: ErrNoRecipient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.builder.Build("session_1_x", "en")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_BadTemplate(t *testing.T) {
	_, err := Builder{Recipient: "1", Template: "{{ .Nope }}"}.Build("", "")
	require.Error(t, err)
}

func TestBrowserOpener(t *testing.T) {
	tests := []struct {
		goos string
		cmd  string
		args []string
	}{
		{goos: "linux", cmd: "xdg-open", args: []string{"https://wa.me/1"}},
		{goos: "darwin", cmd: "open", args: []string{"https://wa.me/1"}},
		{goos: "windows", cmd: "rundll32", args: []string{"url.dll,FileProtocolHandler", "https://wa.me/1"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			rec := &executil.Recorder{}
			o := &BrowserOpener{Exec: rec, GOOS: tt.goos}

			require.NoError(t, o.Open(context.Background(), "https://wa.me/1"))

			launches := rec.Launches()
			require.Len(t, launches, 1)
			assert.Equal(t, tt.cmd, launches[0].Name)
			assert.Equal(t, tt.args, launches[0].Args)
		})
	}
}

func TestBrowserOpener_Error(t *testing.T) {
	rec := &executil.Recorder{Fail: func(string) error { return errors.New("no display") }}
	o := &BrowserOpener{Exec: rec, GOOS: "linux"}
	assert.Error(t, o.Open(context.Background(), "https://wa.me/1"))
}

func TestOpenerFunc(t *testing.T) {
	var got string
	o := OpenerFunc(func(_ context.Context, url string) error {
		got = url
		return nil
	})
	require.NoError(t, o.Open(context.Background(), "x"))
	assert.Equal(t, "x", got)
	assert.NoError(t, NopOpener{}.Open(context.Background(), "x"))
}
