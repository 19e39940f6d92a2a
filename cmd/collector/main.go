// Command collector runs the exchange WebSocket subscriber: it maintains a
// dynamic top-N-by-open-interest ticker subscription set and forwards raw
// messages and book-summary snapshots onto the stream log.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qeinfinity/dealer-flow/internal/collector"
	"github.com/qeinfinity/dealer-flow/internal/config"
	"github.com/qeinfinity/dealer-flow/internal/streamlog"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("collector: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logClient, err := streamlog.New(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("collector: connecting to stream log: %v", err)
	}
	defer logClient.Close()

	if !logClient.WaitReady(ctx, cfg.RedisWaitRetries, cfg.RedisWaitDelay) {
		logger.Fatalf("collector: stream log unreachable after %d retries", cfg.RedisWaitRetries)
	}

	c := collector.New(collector.Config{
		WSURL:           cfg.DeribitWS,
		RESTBase:        cfg.DeribitREST,
		ClientID:        cfg.DeribitID,
		ClientSecret:    cfg.DeribitSecret,
		Currency:        cfg.Currency,
		MaxInstruments:  cfg.MaxAuthInstruments,
		RefreshInterval: cfg.DynamicSubRefreshInterval(),
	}, logClient, logger, nil)

	logger.Printf("collector: starting, currency=%s authenticated=%v", cfg.Currency, cfg.Authenticated())
	if err := c.Run(ctx); err != nil {
		logger.Fatalf("collector: exited: %v", err)
	}
	logger.Printf("collector: shut down cleanly")
}
