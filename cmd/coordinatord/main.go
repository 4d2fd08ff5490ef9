package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatorguard/coordinator/internal/config"
	"github.com/gatorguard/coordinator/internal/server"
)

func main() {
	port := flag.String("port", "", "listen port (overrides PORT)")
	remote := flag.String("remote", "", "account service base URL (overrides REMOTE_BASE_URL)")
	cachePath := flag.String("cache", "", "state cache file (overrides CACHE_PATH)")
	dev := flag.Bool("dev", false, "development mode (colored debug logs)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *remote != "" {
		cfg.Remote.BaseURL = *remote
	}
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
