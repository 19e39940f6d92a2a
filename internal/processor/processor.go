package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qeinfinity/dealer-flow/internal/rollup"
	"github.com/qeinfinity/dealer-flow/internal/streamlog"
)

const (
	// StreamMetrics carries one AggregateRecord per publish cycle.
	StreamMetrics = "metrics"

	tracesNamespace = "dealerflow.processor"

	consumerGroup = "processor"
	consumerName  = "p1"

	readCount          = 500
	readBlock          = 200 * time.Millisecond
	publishInterval    = 1 * time.Second
	hedgePressureAlpha = 0.1
	hedgePressureBeta  = 0.1
)

// Config is the subset of environment configuration the processor needs.
type Config struct {
	RawStream string
}

// Processor consumes the raw stream, maintains the per-instrument risk map,
// and publishes an aggregate record once per second.
type Processor struct {
	cfg    Config
	log    *streamlog.Client
	logger *log.Logger
	tracer trace.Tracer
	rate   *rateTracker

	mu           sync.Mutex
	instruments  map[string]rollup.Instrument
	spot         float64
	lastPubPrice float64
}

// New builds a Processor. logger and tracerProvider are optional.
func New(cfg Config, logClient *streamlog.Client, logger *log.Logger, tracerProvider trace.TracerProvider) *Processor {
	if cfg.RawStream == "" {
		cfg.RawStream = "raw"
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &Processor{
		cfg:         cfg,
		log:         logClient,
		logger:      logger,
		tracer:      tracerProvider.Tracer(tracesNamespace),
		rate:        newRateTracker(),
		instruments: make(map[string]rollup.Instrument),
	}
}

// Run creates the processor consumer group (treating "already exists" as
// success) and drives the read loop and the publish cycle until ctx is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.log.EnsureGroup(ctx, p.cfg.RawStream, consumerGroup, "$"); err != nil {
		return fmt.Errorf("ensuring consumer group: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.publishLoop(ctx)
	}()

	err := p.readLoop(ctx)
	wg.Wait()
	return err
}

// readLoop is the XREADGROUP(count=500, block=200ms) consumer. Malformed
// entries are logged and dropped without stalling the ack — every delivered
// id is acked whether or not it could be parsed, matching spec.md §4.2's
// "reject anything without params.channel/data" policy.
func (p *Processor) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		entries, err := p.log.ReadGroup(ctx, p.cfg.RawStream, consumerGroup, consumerName, readCount, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("processor: read group failed: %v, retrying in %s", err, reconnectBackoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectBackoff):
			}
			continue
		}

		if len(entries) == 0 {
			continue
		}

		ids := make([]string, 0, len(entries))
		now := time.Now()
		for _, entry := range entries {
			payload, err := entry.Require()
			if err != nil {
				p.logger.Printf("processor: %v, dropping", err)
			} else {
				p.handleEntry(payload, now)
			}
			ids = append(ids, entry.ID)
		}
		if err := p.log.Ack(ctx, p.cfg.RawStream, consumerGroup, ids...); err != nil {
			p.logger.Printf("processor: ack failed: %v", err)
		}
	}
}

func (p *Processor) handleEntry(payload []byte, receivedAt time.Time) {
	channel, data, ok := parseEnvelope(payload)
	if !ok {
		p.logger.Printf("processor: malformed raw entry, dropping")
		return
	}

	switch {
	case hasPrefix(channel, "deribit_price_index"):
		price, err := applySpotIndex(data)
		if err != nil {
			p.logger.Printf("processor: unusable price index, dropping: %v", err)
			return
		}
		p.mu.Lock()
		p.spot = price
		p.mu.Unlock()

	case hasPrefix(channel, "ticker."):
		name, ins, err := buildInstrument(data, p.currentSpot())
		if err != nil {
			p.logger.Printf("processor: unparseable ticker, dropping: %v", err)
			return
		}
		p.mu.Lock()
		p.instruments[name] = ins
		p.mu.Unlock()
		p.rate.record(receivedAt)

	default:
		// Unrecognised channel: ignore.
	}
}

func (p *Processor) currentSpot() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spot
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

const reconnectBackoff = 5 * time.Second

// publishLoop runs the aggregate-record publish cycle every publishInterval.
func (p *Processor) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

// publishOnce materialises a snapshot of the per-instrument map, rolls it up
// and emits one AggregateRecord, unless the map is empty or spot has never
// been set — see spec.md §4.2's publish-cycle guard.
func (p *Processor) publishOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, tracesNamespace+".publish")
	defer span.End()

	p.mu.Lock()
	spot := p.spot
	lastPubPrice := p.lastPubPrice
	snapshot := make([]rollup.Instrument, 0, len(p.instruments))
	for _, ins := range p.instruments {
		snapshot = append(snapshot, ins)
	}
	p.mu.Unlock()

	if len(snapshot) == 0 || spot <= 0 {
		return
	}

	signed := make([]rollup.Instrument, len(snapshot))
	for i, ins := range snapshot {
		signed[i] = rollup.Signed(ins)
	}

	agg := rollup.RollUp(signed)
	gammaByStrike := rollup.GammaByStrike(signed)
	flipPct, hasFlip := rollup.FlipPct(gammaByStrike, spot)

	spotMoveSign := rollup.SpotMoveSign(spot, lastPubPrice)
	hpp := rollup.HPP(spotMoveSign, agg.NGI, agg.VSS, agg.CHL24h, hedgePressureAlpha, hedgePressureBeta)
	spotChangePct := rollup.SpotChangePct(spot, lastPubPrice)

	advUSD := rollup.ADVPlaceholder(signed)
	scenario := rollup.Classify(rollup.Flow{NGI: agg.NGI, VSS: agg.VSS, CHL24h: agg.CHL24h, HPP: hpp}, advUSD, spotChangePct)

	record := AggregateRecord{
		TS:       nowSeconds(),
		Price:    spot,
		MsgRate:  p.rate.countSince(time.Now()),
		NGI:      agg.NGI,
		VSS:      agg.VSS,
		CHL24h:   agg.CHL24h,
		VOLG:     agg.VOLG,
		HPP:      hpp,
		Scenario: string(scenario),
	}
	if hasFlip {
		record.FlipPct = &flipPct
	}

	p.mu.Lock()
	p.lastPubPrice = spot
	p.mu.Unlock()

	payload, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Printf("processor: marshalling aggregate record failed: %v", err)
		return
	}
	if _, err := p.log.Add(ctx, StreamMetrics, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Printf("processor: writing to %s failed: %v", StreamMetrics, err)
		return
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
