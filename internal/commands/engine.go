package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/chatwidget/internal/analytics"
	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/internal/gateway"
)

// widget assembles engines from configuration. One widget serves every
// engine a command creates; the analytics sink is shared between them.
type widget struct {
	cfg    *config.Config
	sink   analytics.Sink
	opener escalation.Opener
}

// newWidget opens the analytics sink when enabled and registers its release
// with flags.
func newWidget(ctx context.Context, flags *Flags, opener escalation.Opener) (*widget, error) {
	w := &widget{cfg: flags.Config, opener: opener}

	if flags.Config.Analytics.Enabled {
		a := flags.Config.Analytics
		sink, closeSink, err := analytics.NewSink(ctx, analytics.Config{
			Driver:    a.Driver,
			Topic:     a.Topic,
			RedisAddr: a.RedisAddr,
		}, log.With().Str("component", "analytics").Logger())
		if err != nil {
			return nil, fmt.Errorf("analytics: %w", err)
		}
		flags.OnClose(closeSink)
		w.sink = sink
	}

	return w, nil
}

// engine builds one engine over store. language overrides the configured one
// when set.
func (w *widget) engine(store kv.Store, language string, listeners ...engine.Listener) *engine.Engine {
	cfg := w.cfg
	logger := log.With().Str("component", "engine").Logger()

	var gw gateway.Gateway
	if cfg.Webhook.URL != "" {
		gw = gateway.NewHTTP(gateway.Options{
			URL:         cfg.Webhook.URL,
			Timeout:     cfg.Webhook.Timeout,
			TypingDelay: cfg.Webhook.TypingDelay,
			Headers:     cfg.Webhook.Headers,
			Logger:      log.With().Str("component", "gateway").Logger(),
		})
		if w.sink != nil {
			gw = analytics.WrapGateway(gw, w.sink, logger)
		}
	}

	if language == "" {
		language = cfg.Language
	}

	e := engine.New(engine.Options{
		Gateway:   gw,
		Store:     store,
		Persist:   cfg.Persist,
		Catalog:   catalog(cfg),
		Language:  locale.Normalize(language),
		Fallback:  cfg.Resolver(),
		SeedDelay: cfg.SeedDelay,
		Escalation: escalation.Builder{
			Template:  cfg.Escalation.Link,
			Host:      cfg.Escalation.Host,
			Recipient: cfg.Escalation.Recipient,
			Greeting:  cfg.Escalation.Greeting,
		},
		Opener:    w.opener,
		Listeners: listeners,
		Logger:    logger,
	})

	if w.sink != nil {
		analytics.Attach(e, w.sink, logger)
	}
	return e
}

// catalog applies the configured bot name to every built-in entry.
func catalog(cfg *config.Config) *locale.Catalog {
	def := locale.Default()
	if cfg.BotName == "" {
		return def
	}

	entries := make([]locale.Entry, 0, len(def.Tags()))
	for _, tag := range def.Tags() {
		e, _ := def.Lookup(string(tag))
		e.BotName = cfg.BotName
		entries = append(entries, e)
	}
	return locale.NewCatalog(def.DefaultTag(), entries...)
}
