package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lybpyn/yaak/internal/compiler"
	"github.com/lybpyn/yaak/internal/config"
	"github.com/lybpyn/yaak/internal/orchestrator"
	"github.com/lybpyn/yaak/internal/service"
	"github.com/lybpyn/yaak/internal/store"
)

// main hosts the workflow engine as a standalone process: it wires the
// store, compiler registry, orchestrator, and service facade together and
// waits for a shutdown signal. Transport (HTTP/IPC) is the embedding
// application's concern; registering node executors for the action
// subtypes is too: a bare engine host has none registered, so action nodes
// run as no-ops that complete with an empty output.
func main() {
	var (
		dsn      = flag.String("dsn", "", "Postgres DSN (overrides DATABASE_DSN)")
		inMemory = flag.Bool("memory", false, "Use the in-memory store instead of Postgres")
	)
	flag.Parse()

	cfg := config.Load()
	if *dsn != "" {
		cfg.DatabaseDSN = *dsn
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var st store.Store
	if *inMemory {
		st = store.NewMemoryStore()
		log.Info().Msg("using in-memory store")
	} else {
		bunStore := store.NewBunStore(cfg.DatabaseDSN)
		if err := bunStore.InitSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize database schema")
		}
		defer bunStore.Close()
		st = bunStore
		log.Info().Str("dsn", maskDSN(cfg.DatabaseDSN)).Msg("using postgres store")
	}

	registry := compiler.DefaultRegistry()
	executors := orchestrator.NewNodeExecutorRegistry()
	events := orchestrator.NewEventBus()
	events.Subscribe(func(e orchestrator.Event) {
		log.Debug().Str("event", string(e.Name)).Interface("payload", e.Payload).Msg("workflow event")
	})

	orch := orchestrator.New(st, registry, executors, events)
	_ = service.New(st, registry, orch)
	log.Info().Msg("workflow engine ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
}

// maskDSN hides the credential section of a DSN for logging.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	scheme := strings.Index(dsn, "://")
	if scheme < 0 {
		return "***" + dsn[at:]
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
