// Command masterfeed logs into the master account and publishes its open
// positions as a JSON snapshot, through an atomically replaced file and an
// optional loopback HTTP endpoint. It is read-only at the broker: it never
// sends orders and never touches the slave account.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
	"github.com/mt5tools/copier/internal/publisher"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	applyEnvOverrides(&cfg.Publisher, logger)

	creds, err := config.LoadCredentials(cfg.Files.Credentials)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load credentials")
	}

	symbols, err := config.LoadSymbolMap(cfg.Files.SymbolMap)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load symbol mapping")
	}

	var client broker.Client = broker.NewBridgeWithClient(
		cfg.Bridge.URL,
		&http.Client{Timeout: cfg.Bridge.Timeout},
	)
	client = broker.NewCircuitBreakerClient(client)

	pub := publisher.New(client, creds.Master, symbols, cfg.Publisher, logger)
	if err := pub.Connect(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to master account")
	}
	defer func() {
		if err := client.Shutdown(); err != nil {
			logger.WithError(err).Warn("Failed to shut down terminal")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pub.Run(ctx)
	})

	if cfg.Publisher.HTTPPort > 0 {
		srv := publisher.NewServer(cfg.Publisher.HTTPPort, pub.Snapshot, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("Feed error")
	}
	logger.Info("Feed stopped")
}

// applyEnvOverrides lets deployment scripts steer the feed without editing
// the shared config file.
func applyEnvOverrides(cfg *config.PublisherConfig, logger *logrus.Logger) {
	if dir := os.Getenv("MT5_COPIER_OUTPUT_DIR"); dir != "" {
		cfg.OutputDir = dir
	}
	if raw := os.Getenv("MT5_COPIER_HTTP_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 0 || port > 65535 {
			logger.Fatalf("Invalid MT5_COPIER_HTTP_PORT %q", raw)
		}
		cfg.HTTPPort = port
	}
}
