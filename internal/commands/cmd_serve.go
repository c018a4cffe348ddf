package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/printer"
	"github.com/hay-kot/chatwidget/internal/server"
)

type ServeCmd struct {
	flags *Flags

	// Command-specific flags
	addr     string
	noBridge bool
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Serve the responder stub and the widget bridge",
		UsageText: "chatwidget serve [options]",
		Description: `Starts an HTTP server with:

  POST /api/webhook     keyword responder compatible with the widget's gateway
  GET  /api/widget/ws   websocket bridge running one widget per connection
  GET  /healthz         liveness probe

Browser hosts pass ?client=<id> to the bridge to resume their conversation.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("CHATWIDGET_ADDR", "PORT"),
				Destination: &cmd.addr,
			},
			&cli.BoolFlag{
				Name:        "no-bridge",
				Usage:       "serve only the webhook responder",
				Destination: &cmd.noBridge,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Addr
	if cmd.addr != "" {
		addr = normalizeAddr(cmd.addr)
	}

	logger := log.With().Str("component", "server").Logger()

	tables := server.DefaultResponderTables()
	if r := cfg.Resolver(); r != nil {
		tables[locale.Normalize(cfg.Language)] = r
	}

	opts := server.Options{
		Addr:           addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Responder:      server.NewResponder(tables, locale.Normalize(cfg.Language), logger),
		Store:          cmd.flags.Store,
		Logger:         logger,
	}

	if !cmd.noBridge {
		w, err := newWidget(ctx, cmd.flags, escalation.NopOpener{})
		if err != nil {
			return err
		}
		opts.Engines = func(store kv.Store) *engine.Engine {
			return w.engine(store, "")
		}
	}

	printer.Ctx(ctx).Infof("serving on %s", addr)
	return server.New(opts).Run(ctx)
}

// normalizeAddr accepts a bare port such as "3000", as PORT is usually set.
func normalizeAddr(addr string) string {
	for _, r := range addr {
		if r < '0' || r > '9' {
			return addr
		}
	}
	return ":" + addr
}
