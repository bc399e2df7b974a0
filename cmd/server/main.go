package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"fenrir/internal/config"
	"fenrir/internal/exchange"
	"fenrir/internal/idalloc"
	"fenrir/internal/logging"
	"fenrir/internal/metrics"
	"fenrir/internal/store"
	"fenrir/internal/transport"
	"fenrir/internal/writer"
	"fenrir/internal/writer/broadcast"
	"fenrir/internal/writer/durable"
	"fenrir/internal/writer/eventlog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(os.Getenv("FENRIR_CONFIG_FILE"))
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logging.Setup(level)
	log := logging.For("main")
	log.Info().Str("config", cfg.String()).Msg("starting exchange core")

	reg := metrics.New()

	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	durableWriter := durable.New(st, reg, logging.For("durable-writer"), cfg.DurableQueueSize)
	durableWriter.Startup()
	defer durableWriter.Shutdown()

	writers := []writer.Writer{durableWriter}

	if mcast, err := broadcast.Dial(cfg.MulticastGroup, cfg.MulticastPort, cfg.MulticastTTL, logging.For("broadcast-writer")); err != nil {
		log.Warn().Err(err).Msg("multicast broadcast disabled")
	} else {
		defer mcast.Close()
		writers = append(writers, mcast)
	}

	evlog, err := eventlog.New(cfg.EventLogDir, cfg.EventLogWorkers, logging.For("eventlog-writer"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start event log writer")
	}
	defer evlog.Stop()
	writers = append(writers, evlog)

	composite := writer.New(writers...)

	ids := idalloc.New(st)
	ex := exchange.New(composite, ids, reg, logging.For("exchange"))

	log.Info().Msg("rebuilding books from storage")
	if err := ex.RebuildFromStorage(); err != nil {
		log.Fatal().Err(err).Msg("rebuild failed")
	}
	log.Info().Msg("rebuild complete — ready to serve")

	srv := transport.New(cfg.ListenAddr, ex, logging.For("transport"))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("transport server exited")
		}
	}

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error().Err(err).Msg("transport shutdown error")
	}
}
