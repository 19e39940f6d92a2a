// Package warehouse durably ships the metrics and summaries streams into a
// ClickHouse warehouse with batching and at-least-once delivery: a message
// id is acked only after a successful insert that includes it.
package warehouse

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qeinfinity/dealer-flow/internal/streamlog"
)

const (
	tracesNamespace = "dealerflow.warehouse"

	consumerGroup = "ch_writer_group"
	consumerName  = "ch_writer_consumer_1"

	streamMetrics   = "metrics"
	streamSummaries = "summaries"

	readBlock        = 1 * time.Second
	retryBackoff     = 5 * time.Second
	shutdownFlushMax = 10 * time.Second
)

// Config is the warehouse connection and batching configuration.
type Config struct {
	Host               string
	Port               int
	Database           string
	Username           string
	Password           string
	BatchSize          int
	BatchMaxAgeSeconds int
}

func (c Config) batchMaxAge() time.Duration {
	return time.Duration(c.BatchMaxAgeSeconds) * time.Second
}

// Writer is the batching warehouse consumer. It owns one ClickHouse
// connection, shared by the metrics and summaries consumer loops.
type Writer struct {
	cfg    Config
	conn   clickhouse.Conn
	log    *streamlog.Client
	logger *log.Logger
	tracer trace.Tracer
}

// New dials ClickHouse and wraps the given stream-log client. It does not
// probe connectivity itself — call Probe before Run.
func New(cfg Config, logClient *streamlog.Client, logger *log.Logger, tracerProvider trace.TracerProvider) (*Writer, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	return &Writer{
		cfg:    cfg,
		conn:   conn,
		log:    logClient,
		logger: logger,
		tracer: tracerProvider.Tracer(tracesNamespace),
	}, nil
}

// Probe runs a startup connectivity check. Per spec.md §7, a failure here is
// fatal: the caller should exit the process rather than retry.
func (w *Writer) Probe(ctx context.Context) error {
	if err := w.conn.QueryRow(ctx, "SELECT 1").Err(); err != nil {
		return fmt.Errorf("clickhouse startup probe failed: %w", err)
	}
	return nil
}

// Close releases the underlying ClickHouse connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// Run creates both consumer groups (treating "already exists" as success)
// and drives the metrics and summaries consumer loops until ctx is
// cancelled, flushing in-flight batches best-effort on the way out.
func (w *Writer) Run(ctx context.Context) error {
	if err := w.log.EnsureGroup(ctx, streamMetrics, consumerGroup, "$"); err != nil {
		return fmt.Errorf("ensuring metrics consumer group: %w", err)
	}
	if err := w.log.EnsureGroup(ctx, streamSummaries, consumerGroup, "$"); err != nil {
		return fmt.Errorf("ensuring summaries consumer group: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.runMetricsStream(ctx)
	}()
	go func() {
		defer wg.Done()
		w.runSummariesStream(ctx)
	}()
	wg.Wait()
	return nil
}

func (w *Writer) batchSize() int {
	if w.cfg.BatchSize <= 0 {
		return 100
	}
	return w.cfg.BatchSize
}
