package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openmerit/elmarket/exchange"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "exchange-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := exchange.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := exchange.ServerOptions{
		Logger:      logger,
		MaxWorkers:  cfg.MaxWorkers,
		ReadTimeout: cfg.ReadTimeout,
	}

	if cfg.SigningKeyFile != "" {
		key, err := exchange.LoadSigningKey(cfg.SigningKeyFile)
		if err != nil {
			return err
		}
		opts.Key = key
		logger.Info("loaded receipt signing key", zap.String("path", cfg.SigningKeyFile))
	}

	if cfg.LedgerDir != "" {
		ledger, err := exchange.OpenLedger(cfg.LedgerDir, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := ledger.Close(); err != nil {
				logger.Error("failed to close ledger", zap.Error(err))
			}
		}()
		opts.Ledger = ledger
		logger.Info("receipt ledger opened", zap.String("dir", cfg.LedgerDir))
	}

	if len(cfg.KafkaBrokers) > 0 {
		notifier := exchange.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("failed to close kafka writer", zap.Error(err))
			}
		}()
		opts.Notifier = notifier
		logger.Info("publishing cleared bids to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	} else {
		logger.Warn("no kafka brokers configured, cleared bids are not published")
	}

	server, err := exchange.NewServer(opts)
	if err != nil {
		return err
	}

	listener, err := exchange.Listen(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, listener)
}
