package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/qeinfinity/dealer-flow/internal/blackscholes"
	"github.com/qeinfinity/dealer-flow/internal/instrument"
	"github.com/qeinfinity/dealer-flow/internal/rollup"
)

// envelope is the subset of the exchange's JSON-RPC notification the
// processor reads off the raw stream: a subscription push with a channel
// name and an opaque data payload.
type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type subParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type priceIndexData struct {
	Price      float64 `json:"price"`
	IndexPrice float64 `json:"index_price"`
}

// tickerGreeks mirrors the feed's greeks block. Vanna/charm/volga are
// pointers because the exchange does not always populate them — a nil
// pointer means "missing", distinct from an explicit zero.
type tickerGreeks struct {
	Gamma float64  `json:"gamma"`
	Vanna *float64 `json:"vanna"`
	Charm *float64 `json:"charm"`
	Volga *float64 `json:"volga"`
}

// tickerData is the fields of a ticker.<instrument>.100ms payload the
// processor consumes. mark_iv is the exchange's implied vol in percentage
// points (e.g. 65.2 for 65.2%); timestamp is exchange epoch-milliseconds.
// The Black-Scholes underlying input and notional_usd both use the latest
// known spot (falling back to mark_price), per spec, not a separate
// underlying_price field.
type tickerData struct {
	InstrumentName string       `json:"instrument_name"`
	Timestamp      float64      `json:"timestamp"`
	MarkIV         float64      `json:"mark_iv"`
	MarkPrice      float64      `json:"mark_price"`
	OpenInterest   float64      `json:"open_interest"`
	Greeks         tickerGreeks `json:"greeks"`
}

// parseEnvelope extracts the channel name and data payload from a raw
// subscription message. It returns ok=false for anything that isn't a
// subscription push with a non-empty channel and a data payload — the caller
// drops those without failing the read loop.
func parseEnvelope(raw []byte) (channel string, data json.RawMessage, ok bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Method != "subscription" {
		return "", nil, false
	}
	var params subParams
	if err := json.Unmarshal(env.Params, &params); err != nil || params.Channel == "" || len(params.Data) == 0 {
		return "", nil, false
	}
	return params.Channel, params.Data, true
}

// applySpotIndex decodes a deribit_price_index payload and returns the
// updated spot price. price is preferred over the index_price fallback; an
// error means the payload is malformed or neither field is positive.
func applySpotIndex(data json.RawMessage) (float64, error) {
	var p priceIndexData
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, fmt.Errorf("decoding price index: %w", err)
	}
	if p.Price > 0 {
		return p.Price, nil
	}
	if p.IndexPrice > 0 {
		return p.IndexPrice, nil
	}
	return 0, fmt.Errorf("price index payload has no positive price or index_price")
}

// buildInstrument decodes a ticker payload and computes the risk row stored
// in the per-instrument map. Gamma is always overridden by the Black-Scholes
// kernel when its inputs are valid (positive IV, time to expiry and
// underlying price); vanna/charm/volga are overridden only where the feed
// left them unset. When the Black-Scholes inputs are invalid, whatever the
// feed supplied is kept and any unset field defaults to zero. Time to expiry
// is derived from the payload's own timestamp, not the processor's read
// clock, so replaying a recorded stream reproduces the same stored greeks.
func buildInstrument(data json.RawMessage, spot float64) (string, rollup.Instrument, error) {
	var t tickerData
	if err := json.Unmarshal(data, &t); err != nil {
		return "", rollup.Instrument{}, fmt.Errorf("decoding ticker: %w", err)
	}
	if t.InstrumentName == "" {
		return "", rollup.Instrument{}, fmt.Errorf("ticker payload missing instrument_name")
	}

	id, err := instrument.Parse(t.InstrumentName)
	if err != nil {
		return "", rollup.Instrument{}, fmt.Errorf("parsing instrument name: %w", err)
	}

	refPrice := spot
	if refPrice <= 0 {
		refPrice = t.MarkPrice
	}

	msgTime := time.Unix(0, int64(t.Timestamp*float64(time.Millisecond)))
	yearsToExpiry := id.YearsUntil(msgTime)
	sigma := t.MarkIV / 100

	ins := rollup.Instrument{
		Gamma:       t.Greeks.Gamma,
		Vanna:       deref(t.Greeks.Vanna),
		Charm:       deref(t.Greeks.Charm),
		Volga:       deref(t.Greeks.Volga),
		Strike:      id.Strike,
		NotionalUSD: t.OpenInterest * refPrice,
	}
	if blackscholes.Valid(yearsToExpiry, sigma, refPrice) {
		g := blackscholes.Compute(refPrice, id.Strike, yearsToExpiry, 0, sigma)
		ins.Gamma = g.Gamma
		if t.Greeks.Vanna == nil {
			ins.Vanna = g.Vanna
		}
		if t.Greeks.Charm == nil {
			ins.Charm = g.Charm
		}
		if t.Greeks.Volga == nil {
			ins.Volga = g.Volga
		}
	}

	return t.InstrumentName, ins, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
