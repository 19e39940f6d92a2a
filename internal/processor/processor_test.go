package processor

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/qeinfinity/dealer-flow/internal/rollup"
)

func newTestProcessor() *Processor {
	return &Processor{
		cfg:         Config{RawStream: "raw"},
		logger:      log.New(io.Discard, "", 0),
		tracer:      otel.GetTracerProvider().Tracer(tracesNamespace),
		rate:        newRateTracker(),
		instruments: make(map[string]rollup.Instrument),
	}
}

func TestHandleEntryUpdatesSpot(t *testing.T) {
	p := newTestProcessor()
	raw := []byte(`{"method":"subscription","params":{"channel":"deribit_price_index.btc_usd","data":{"price":65000}}}`)
	p.handleEntry(raw, time.Now())
	require.Equal(t, 65000.0, p.currentSpot())
}

func TestHandleEntryIgnoresNonPositiveSpot(t *testing.T) {
	p := newTestProcessor()
	p.spot = 1000
	raw := []byte(`{"method":"subscription","params":{"channel":"deribit_price_index.btc_usd","data":{"price":0}}}`)
	p.handleEntry(raw, time.Now())
	require.Equal(t, 1000.0, p.currentSpot())
}

func TestHandleEntryWritesLastWriteWinsInstrument(t *testing.T) {
	p := newTestProcessor()
	p.spot = 58000
	ticker := func(openInterest string) []byte {
		return []byte(`{"method":"subscription","params":{"channel":"ticker.BTC-24MAY25-60000-P.100ms","data":{
		"instrument_name":"BTC-24MAY25-60000-P",
		"timestamp":` + msgTimeMillis(time.Date(2025, time.May, 23, 8, 0, 0, 0, time.UTC)) + `,
		"mark_iv":65.2,
		"underlying_price":58000,
		"open_interest":` + openInterest + `,
		"greeks":{"gamma":0.00001}
	}}}`)
	}
	p.handleEntry(ticker("20"), time.Now())
	p.handleEntry(ticker("30"), time.Now())
	require.Contains(t, p.instruments, "BTC-24MAY25-60000-P")
	require.Equal(t, 1, len(p.instruments))
	require.InDelta(t, 30*58000.0, p.instruments["BTC-24MAY25-60000-P"].NotionalUSD, 1e-6)
}

func TestHandleEntryDropsMalformedWithoutPanicking(t *testing.T) {
	p := newTestProcessor()
	require.NotPanics(t, func() {
		p.handleEntry([]byte(`not-json`), time.Now())
		p.handleEntry([]byte(`{"method":"subscription","params":{"channel":"ticker.garbage","data":{"instrument_name":"garbage"}}}`), time.Now())
	})
	require.Empty(t, p.instruments)
}

func TestPublishOnceSkipsWhenMapEmpty(t *testing.T) {
	p := newTestProcessor()
	p.spot = 58000
	require.NotPanics(t, func() {
		p.publishOnce(context.Background()) // p.log is nil; this must return before touching it
	})
}

func TestPublishOnceSkipsWhenSpotNotSet(t *testing.T) {
	p := newTestProcessor()
	p.instruments["x"] = rollup.Instrument{Gamma: 1, NotionalUSD: 100}
	require.NotPanics(t, func() {
		p.publishOnce(context.Background())
	})
}
