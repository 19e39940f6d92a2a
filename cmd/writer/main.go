// Command writer durably ships the metrics and summaries streams into
// ClickHouse with batching and at-least-once delivery.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qeinfinity/dealer-flow/internal/config"
	"github.com/qeinfinity/dealer-flow/internal/streamlog"
	"github.com/qeinfinity/dealer-flow/internal/warehouse"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("writer: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logClient, err := streamlog.New(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("writer: connecting to stream log: %v", err)
	}
	defer logClient.Close()

	if !logClient.WaitReady(ctx, cfg.RedisWaitRetries, cfg.RedisWaitDelay) {
		logger.Fatalf("writer: stream log unreachable after %d retries", cfg.RedisWaitRetries)
	}

	w, err := warehouse.New(warehouse.Config{
		Host:               cfg.ClickHouseHost,
		Port:               cfg.ClickHousePort,
		Database:           cfg.ClickHouseDBName,
		Username:           cfg.ClickHouseUser,
		Password:           cfg.ClickHousePassword,
		BatchSize:          cfg.BatchSize,
		BatchMaxAgeSeconds: cfg.BatchMaxAgeSeconds,
	}, logClient, logger, nil)
	if err != nil {
		logger.Fatalf("writer: constructing clickhouse client: %v", err)
	}
	defer w.Close()

	if err := w.Probe(ctx); err != nil {
		logger.Fatalf("writer: %v", err)
	}

	logger.Printf("writer: starting, clickhouse=%s:%d/%s", cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDBName)
	if err := w.Run(ctx); err != nil {
		logger.Fatalf("writer: exited: %v", err)
	}
	logger.Printf("writer: shut down cleanly")
}
