// Command processor consumes the raw stream, fills missing option risk
// sensitivities via the Black-Scholes kernel, and publishes one aggregate
// dealer-positioning record per second onto the metrics stream.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qeinfinity/dealer-flow/internal/config"
	"github.com/qeinfinity/dealer-flow/internal/processor"
	"github.com/qeinfinity/dealer-flow/internal/streamlog"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("processor: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logClient, err := streamlog.New(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("processor: connecting to stream log: %v", err)
	}
	defer logClient.Close()

	if !logClient.WaitReady(ctx, cfg.RedisWaitRetries, cfg.RedisWaitDelay) {
		logger.Fatalf("processor: stream log unreachable after %d retries", cfg.RedisWaitRetries)
	}

	p := processor.New(processor.Config{RawStream: "raw"}, logClient, logger, nil)

	logger.Printf("processor: starting")
	if err := p.Run(ctx); err != nil {
		logger.Fatalf("processor: exited: %v", err)
	}
	logger.Printf("processor: shut down cleanly")
}
