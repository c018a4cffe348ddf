package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/printer"
	"github.com/hay-kot/chatwidget/internal/store/memory"
)

type registrar interface {
	Register(app *cli.Command) *cli.Command
}

// testFlags returns flags backed by a memory store and default config rooted
// in a temp data dir. Replies come from the fallback table unless a webhook
// is configured.
func testFlags(t *testing.T) *Flags {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load("", dir)
	require.NoError(t, err)

	cfg.Storage.Driver = config.StorageMemory
	cfg.Webhook.TypingDelay = 0
	cfg.SeedDelay = 0

	return &Flags{
		ConfigPath: dir + "/config.yaml",
		DataDir:    dir,
		Config:     cfg,
		Store:      memory.NewKVStore(),
	}
}

// runCmd runs args against an app holding only r. It returns stdout and the
// printer output.
func runCmd(t *testing.T, r registrar, args ...string) (string, string, error) {
	t.Helper()

	var out, msgs bytes.Buffer
	app := &cli.Command{
		Name:           "chatwidget",
		Writer:         &out,
		ErrWriter:      &msgs,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
	r.Register(app)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = printer.NewContext(ctx, printer.New(&msgs))

	err := app.Run(ctx, append([]string{"chatwidget"}, args...))
	return out.String(), msgs.String(), err
}

// webhook starts a responder that answers with reply(message).
func webhook(t *testing.T, reply func(msg string) string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": reply(body.Message)})
	}))
	t.Cleanup(srv.Close)
	return srv
}
