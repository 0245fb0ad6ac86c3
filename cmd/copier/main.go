package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mt5tools/copier/internal/audit"
	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
	"github.com/mt5tools/copier/internal/engine"
	"github.com/mt5tools/copier/internal/session"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[COPIER] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	creds, err := config.LoadCredentials(cfg.Files.Credentials)
	if err != nil {
		logger.Fatalf("Failed to load credentials: %v", err)
	}

	symbols, err := config.LoadSymbolMap(cfg.Files.SymbolMap)
	if err != nil {
		logger.Fatalf("Failed to load symbol mapping: %v", err)
	}
	logger.Printf("Loaded %d symbol mappings", symbols.Len())

	auditLog, err := audit.NewWriter(cfg.Files.AuditLog, logger)
	if err != nil {
		logger.Fatalf("Failed to open audit log: %v", err)
	}
	defer func() {
		if err := auditLog.Close(); err != nil {
			logger.Printf("Failed to close audit log: %v", err)
		}
	}()

	var client broker.Client = broker.NewBridgeWithClient(
		cfg.Bridge.URL,
		&http.Client{Timeout: cfg.Bridge.Timeout},
	)
	client = broker.NewCircuitBreakerClient(client)

	sess := session.NewManager(client, logger)
	defer sess.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Printf("Received %s, shutting down...", sig)
		cancel()
	}()

	eng := engine.New(cfg.Engine, creds, symbols, sess, auditLog, logger)
	if err := eng.Run(ctx); err != nil {
		logger.Fatalf("Copier error: %v", err)
	}

	logger.Println("Copier stopped")
}
