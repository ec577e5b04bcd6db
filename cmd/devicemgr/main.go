package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/fleetctl/devicemgr/audio"
	"github.com/fleetctl/devicemgr/internal/config"
	"github.com/fleetctl/devicemgr/internal/logbuffer"
	"github.com/fleetctl/devicemgr/internal/server"
	"github.com/fleetctl/devicemgr/store"
)

// devicemgr: the coordination server for a fleet of embedded
// voice-controlled robotics devices. It starts the WebSocket gateway and
// the read-side HTTP API and waits for shutdown.
func main() {
	logs := logbuffer.New(0)
	logger := zerolog.New(os.Stdout).Hook(logs).With().Timestamp().Logger()

	opts, err := config.Load(os.Getenv("DEVICEMGR_CONFIG_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if opts.DatabaseURL == "" {
		logger.Fatal().Msg("DEVICEMGR_DATABASE_URL is required")
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()

	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open postgres connection")
	}
	if err := db.PingContext(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping postgres")
	}
	logger.Info().Msg("connected to postgres")

	auditStore := store.New(db)
	if err := auditStore.Migrate(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	sttURL := os.Getenv("DEVICEMGR_STT_URL")
	ttsURL := os.Getenv("DEVICEMGR_TTS_URL")
	if sttURL == "" {
		sttURL = "http://stt:9000"
	}
	if ttsURL == "" {
		ttsURL = "http://tts:9001"
	}

	ctx, cancel := context.WithCancel(context.Background())

	_, _, errCh, err := server.Start(ctx, server.Config{
		Options: opts,
		Store:   auditStore,
		Collabs: server.Collaborators{
			Transcriber:   audio.NewHTTPTranscriber(sttURL),
			Synthesizer:   audio.NewHTTPSynthesizer(ttsURL),
			Matcher:       audio.NewFuzzyMatcher(),
			KnowledgeBase: audio.NewStaticKnowledgeBase(),
		},
		Logger: logger,
		Logs:   logs,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	go func() {
		if err := <-errCh; err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info().Str("addr", opts.ListenHost).Int("port", opts.ListenPort).Msg("devicemgr running")
	<-sigCh
	logger.Info().Msg("shutdown signal received; stopping server")
	cancel()
}
