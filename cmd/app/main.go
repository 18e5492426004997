package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"Indicium/internal/di"
	"Indicium/internal/usecase"
	"Indicium/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	refreshNow := flag.Bool("refresh-now", false, "enqueue an on-demand snapshot refresh and exit")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *refreshNow {
		os.Exit(requestRefresh(cfg))
	}

	log.Printf("env=%s warehouse=%s cache=%s", cfg.Environment, cfg.Warehouse.Type, cfg.Cache.Backend)
	os.Exit(serve(cfg))
}

func serve(cfg *config.Config) int {
	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("app initialization failed: %v", err)
		return 1
	}
	defer cleanup()

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		return 1
	}
	return 0
}

func requestRefresh(cfg *config.Config) int {
	pub, cleanup, err := di.InitializeRefreshRequester(cfg)
	if err != nil {
		log.Printf("refresh queue unavailable: %v", err)
		return 1
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host, _ := os.Hostname()
	if err := usecase.RequestRefresh(ctx, pub, "cli@"+host, time.Now()); err != nil {
		log.Printf("enqueue refresh: %v", err)
		return 1
	}
	log.Printf("refresh requested")
	return 0
}
