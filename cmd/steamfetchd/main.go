package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"steamfetch/internal/config"
	"steamfetch/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := bootstrap(cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("steamfetchd shutting down")
	d.Stop()
}
