// Package server exposes the responder stub and the websocket bridge that lets
// a web page host the widget engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/core/locale"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":3000"

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// Responder serves POST /api/webhook. Nil uses the built-in tables.
	Responder *Responder
	// Engines builds one engine per websocket connection. Nil disables the bridge.
	Engines EngineFactory
	// Store backs per-client persistence for bridged engines.
	Store  kv.Store
	Logger zerolog.Logger
}

// Server is the HTTP surface of the widget.
type Server struct {
	addr    string
	handler http.Handler
	log     zerolog.Logger
}

// New wires the routes.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	responder := opts.Responder
	if responder == nil {
		responder = NewResponder(nil, locale.DefaultTag, opts.Logger)
	}
	origins := originMatcher(opts.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(cors(origins))
			g.Options("/webhook", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			g.Post("/webhook", responder.ServeHTTP)
		})

		if opts.Engines != nil {
			api.Get("/widget/ws", NewBridge(opts.Engines, opts.Store, origins, opts.Logger).ServeHTTP)
		}
	})

	return &Server{addr: opts.Addr, handler: r, log: opts.Logger}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
