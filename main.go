package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/audilinea/extractor/config"
	"github.com/audilinea/extractor/extractor"
	"github.com/audilinea/extractor/ntopng"
	"github.com/audilinea/extractor/prom"
	"github.com/audilinea/extractor/remote"
	"github.com/audilinea/extractor/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// No point running without durable storage.
	store, err := storage.Open(cfg.DB, logger)
	if err != nil {
		logger.Fatal("open local store", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	client := ntopng.NewClient(cfg.Ntopng)
	source := ntopng.NewExtractor(client, logger)
	fwd := remote.NewForwarder(cfg.Remote, logger)

	metrics := prom.NewMetrics()
	loop := extractor.New(source, store, fwd, metrics, cfg.Poll, logger)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(prom.NewBacklogCollector(store, logger))
	prom.Serve(cfg.Metrics.Addr, reg, loop, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", s.String()))
		cancel()
	}()

	loop.Run(ctx)
	logger.Info("extractor stopped")
}
