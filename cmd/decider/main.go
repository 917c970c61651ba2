package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snow-ghost/dilemma/pkg/config"
	"github.com/snow-ghost/dilemma/server"
	"github.com/snow-ghost/dilemma/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (default $DILEMMA_CONFIG or dilemma.yaml)")
		port       = flag.String("port", "", "Listen port (overrides config and DECIDER_PORT)")
		check      = flag.Bool("healthcheck", false, "Probe a running decider and exit")
	)
	flag.Parse()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *check {
		healthcheck(cfg.Server.Port)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := cfg.Build(ctx, "decider")
	if err != nil {
		log.Fatalf("Failed to build components: %v", err)
	}
	defer comp.Close(context.Background())

	// tournaments submitted over HTTP run on the same catalog
	tw := worker.NewTournamentWorker(comp.WorkerConfig(worker.WorkerTypeLight))
	ingest := worker.NewIngestor(tw.Run, comp.Logger.Named("ingest"))
	go ingest.Start(ctx)

	srv, err := server.NewServer(cfg.Server, comp.Catalog, comp.Resolver.Resolve,
		server.WithObservability(comp.Obs),
		server.WithTournaments(ingest),
		server.WithStore(comp.Store),
	)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	comp.Logger.Info("starting decision service", "port", cfg.Server.Port, "strategies", len(comp.Catalog.List()))
	if err := srv.Start(ctx); err != nil {
		comp.Logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
