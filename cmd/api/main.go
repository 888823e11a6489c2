package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/punchamoorthee/mymoney/internal/app"
	"github.com/punchamoorthee/mymoney/internal/config"
)

func main() {
	configPath := flag.String("config", "mymoney.toml", "Path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Unable to start: %v", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if err := a.Serve(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
