// Package collector implements the reconnecting exchange WebSocket
// subscriber: it maintains a dynamic working set of top-N option tickers by
// open interest and forwards raw subscription payloads and book-summary
// snapshots onto the stream log.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qeinfinity/dealer-flow/internal/requestid"
	"github.com/qeinfinity/dealer-flow/internal/streamlog"
)

const (
	// StreamRaw carries every price-index and ticker payload verbatim.
	StreamRaw = "raw"
	// StreamSummaries carries book-summary snapshots as {ts, summary_data}.
	StreamSummaries = "summaries"

	tracesNamespace = "dealerflow.collector"

	idleHeartbeatAfter = 5 * time.Second
	reconnectBackoff    = 5 * time.Second
	chunkGap            = 100 * time.Millisecond
)

// Config is the subset of environment configuration the collector needs.
type Config struct {
	WSURL                string
	RESTBase             string
	ClientID             string
	ClientSecret         string
	Currency             string
	MaxInstruments       int
	RefreshInterval      time.Duration
}

// Collector is a reconnecting subscription client for the exchange's
// WebSocket feed.
type Collector struct {
	cfg    Config
	log    *streamlog.Client
	logger *log.Logger
	tracer trace.Tracer
	auth   *authorizer

	dialer websocket.Dialer
	ids    *requestid.Generator

	mu            sync.Mutex
	latestSummary []bookSummaryItem
}

// New builds a Collector. logger and tracerProvider are optional; a nil
// logger discards output and a nil tracerProvider falls back to the global
// provider, matching the teacher client's constructor convention.
func New(cfg Config, log *streamlog.Client, logger *log.Logger, tracerProvider trace.TracerProvider) *Collector {
	if logger == nil {
		logger = log2Discard()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &Collector{
		cfg:    cfg,
		log:    log,
		logger: logger,
		tracer: tracerProvider.Tracer(tracesNamespace),
		auth:   newAuthorizer(cfg.RESTBase, cfg.ClientID, cfg.ClientSecret, logger),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ids:    requestid.New(),
	}
}

func log2Discard() *log.Logger { return log.New(io.Discard, "", 0) }

// Run drives the DISCONNECTED -> AUTHENTICATING -> CONNECTED ->
// BASE_SUBSCRIBED -> OPERATIONAL state machine until ctx is cancelled. Every
// connection error or closure triggers a 5s backoff and a full restart, with
// the active-subscription set cleared on each reconnect.
func (c *Collector) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.runOnce(ctx); err != nil {
			c.logger.Printf("collector: session ended: %v, reconnecting in %s", err, reconnectBackoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectBackoff):
		}
	}
}

func (c *Collector) runOnce(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, tracesNamespace+".session", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// AUTHENTICATING
	tok, err := c.auth.acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("authenticating: %w", err)
	}

	// CONNECTED
	header := http.Header{}
	if tok != nil {
		header.Set("Authorization", "Bearer "+tok.accessToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dialing websocket: %w", err)
	}
	defer conn.Close()

	// BASE_SUBSCRIBED
	if err := c.subscribeBase(conn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("base subscribe: %w", err)
	}

	// OPERATIONAL
	active := map[string]struct{}{}
	freshSummary := make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unauthenticated sessions keep the subscription manager idle: only the
	// base channels are subscribed.
	var wg sync.WaitGroup
	if tok != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.subscriptionManager(runCtx, conn, active, freshSummary)
		}()
	}

	pumpErr := c.messagePump(runCtx, conn, freshSummary)
	cancel()
	wg.Wait()

	if pumpErr != nil {
		span.RecordError(pumpErr)
		span.SetStatus(codes.Error, pumpErr.Error())
		return pumpErr
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

func (c *Collector) subscribeBase(conn *websocket.Conn) error {
	spotChannel := "deribit_price_index." + lower(c.cfg.Currency) + "_usd"
	summaryChannel := "book_summary.option." + c.cfg.Currency + ".all"
	return c.sendSubscribe(conn, "public/subscribe", []string{spotChannel, summaryChannel})
}

func (c *Collector) sendSubscribe(conn *websocket.Conn, method string, channels []string) error {
	req := newRequest(c.ids.NextString(), method, channelsParams{Channels: channels})
	return writeJSON(conn, req)
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func lower(s string) string {
	out := make([]rune, len(s))
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out[i] = r
	}
	return string(out)
}
