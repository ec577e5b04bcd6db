// Package server is the composition root: it wires the registry, session
// manager, heartbeat reaper, command router, telemetry ingestor, and audio
// pipeline together behind one HTTP server, following the teacher's
// StartDiscoveryServer shape (construct a mux, start ListenAndServe in a
// goroutine, watch ctx for shutdown) generalized from a single read-only
// route to the full route table in internal/http.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/audio"
	"github.com/fleetctl/devicemgr/command"
	"github.com/fleetctl/devicemgr/heartbeat"
	api "github.com/fleetctl/devicemgr/internal/http"
	"github.com/fleetctl/devicemgr/internal/logbuffer"
	"github.com/fleetctl/devicemgr/registry"
	"github.com/fleetctl/devicemgr/session"
	"github.com/fleetctl/devicemgr/store"
	"github.com/fleetctl/devicemgr/telemetry"
	"github.com/rs/zerolog"
)

// ErrNilStore is returned if Config.Store is nil at startup.
var ErrNilStore = errors.New("server: audit store is nil")

// ackPortRef breaks the construction cycle between session.Manager (which
// needs an AckPort at construction) and command.Router (which needs the
// session manager as its SessionPort at construction): the manager is
// built against this indirection first, and router is filled in once it
// exists.
type ackPortRef struct {
	router *command.Router
}

func (a *ackPortRef) HandleAck(commandID string, status string, response map[string]any) {
	if a.router != nil {
		a.router.HandleAck(commandID, status, response)
	}
}

// Collaborators bundles the audio pipeline's external dependencies so
// Config doesn't need four separate nil-checkable fields.
type Collaborators struct {
	Transcriber   audio.Transcriber
	Synthesizer   audio.Synthesizer
	Matcher       audio.Matcher
	KnowledgeBase audio.KnowledgeBase // optional
}

// Config configures the coordination server.
type Config struct {
	ListenAddr string // e.g. "0.0.0.0:8000"
	Options    dm.Options
	Store      *store.Store
	Collabs    Collaborators
	Logger     zerolog.Logger
	Logs       *logbuffer.Ring

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server bundles the long-lived components a caller may want to reach
// after startup (the reaper, for join/cancellation via ctx).
type Server struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Router   *command.Router
	Reaper   *heartbeat.Reaper
	Pipeline *audio.Pipeline
}

// Start wires every component and starts the HTTP server. It returns the
// *http.Server, the wired Server bundle, a channel receiving a terminal
// listen error (if any), and an error for immediate startup issues. The
// server and its background reaper both stop when ctx is cancelled.
func Start(ctx context.Context, cfg Config) (*http.Server, *Server, <-chan error, error) {
	if cfg.Store == nil {
		return nil, nil, nil, ErrNilStore
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf("%s:%d", cfg.Options.ListenHost, cfg.Options.ListenPort)
	}
	if cfg.Logs == nil {
		cfg.Logs = logbuffer.New(0)
	}

	reg := registry.New(cfg.Store, cfg.Store, cfg.Logger)
	ingestor := telemetry.New(cfg.Store, cfg.Logger)

	ackRef := &ackPortRef{}
	sessions := session.New(reg, ingestor, ackRef, cfg.Options.OutboundQueueCap, cfg.Logger)

	router := command.New(reg, sessions, cfg.Store, cfg.Options.CommandAckTimeout, cfg.Logger)
	ackRef.router = router

	pipeline := audio.New(
		cfg.Collabs.Transcriber,
		cfg.Collabs.Synthesizer,
		cfg.Collabs.Matcher,
		cfg.Collabs.KnowledgeBase,
		router,
		sessions,
		cfg.Store,
		audio.Config{
			PrefixPhrases:       cfg.Options.PrefixPhrases,
			ConfidenceThreshold: cfg.Options.ConfidenceThreshold,
			SampleRate:          cfg.Options.AudioSampleRate,
			ChunkSize:           cfg.Options.AudioChunkSize,
			AckTimeout:          cfg.Options.CommandAckTimeout,
		},
		cfg.Logger,
	)

	reaper := heartbeat.New(reg, sessions, router, cfg.Options.HeartbeatTimeout, cfg.Options.ReaperInterval, cfg.Logger)
	go reaper.Run(ctx)

	mux := api.NewMux(api.Dependencies{
		Registry: reg,
		Sessions: sessions,
		Router:   router,
		Pipeline: pipeline,
		Store:    cfg.Store,
		Logs:     cfg.Logs,
		Logger:   cfg.Logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 10*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info().Str("addr", cfg.ListenAddr).Msg("devicemgr server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv, &Server{Registry: reg, Sessions: sessions, Router: router, Reaper: reaper, Pipeline: pipeline}, errCh, nil
}

func durationOr(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}
