package processor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeAcceptsSubscriptionPush(t *testing.T) {
	raw := []byte(`{"method":"subscription","params":{"channel":"ticker.BTC-24MAY25-60000-P.100ms","data":{"instrument_name":"BTC-24MAY25-60000-P"}}}`)
	channel, data, ok := parseEnvelope(raw)
	require.True(t, ok)
	require.Equal(t, "ticker.BTC-24MAY25-60000-P.100ms", channel)
	require.NotEmpty(t, data)
}

func TestParseEnvelopeRejectsNonSubscription(t *testing.T) {
	_, _, ok := parseEnvelope([]byte(`{"method":"heartbeat","params":{"type":"test_request"}}`))
	require.False(t, ok)
}

func TestParseEnvelopeRejectsMissingChannelOrData(t *testing.T) {
	_, _, ok := parseEnvelope([]byte(`{"method":"subscription","params":{}}`))
	require.False(t, ok)
}

func TestApplySpotIndexPrefersPriceOverIndexPrice(t *testing.T) {
	price, err := applySpotIndex(json.RawMessage(`{"price":65000.5,"index_price":1}`))
	require.NoError(t, err)
	require.Equal(t, 65000.5, price)
}

func TestApplySpotIndexFallsBackToIndexPrice(t *testing.T) {
	price, err := applySpotIndex(json.RawMessage(`{"index_price":64000}`))
	require.NoError(t, err)
	require.Equal(t, 64000.0, price)
}

func TestApplySpotIndexRejectsNonPositive(t *testing.T) {
	_, err := applySpotIndex(json.RawMessage(`{"price":0,"index_price":-1}`))
	require.Error(t, err)
}

func TestBuildInstrumentUsesBlackScholesWhenValid(t *testing.T) {
	msgTime := time.Date(2025, time.May, 23, 8, 0, 0, 0, time.UTC)
	data := json.RawMessage(`{
		"instrument_name":"BTC-24MAY25-60000-P",
		"timestamp":` + msgTimeMillis(msgTime) + `,
		"mark_iv":65.2,
		"open_interest":125.5,
		"greeks":{"gamma":0.00001}
	}`)
	name, ins, err := buildInstrument(data, 58000)
	require.NoError(t, err)
	require.Equal(t, "BTC-24MAY25-60000-P", name)
	require.Equal(t, 60000.0, ins.Strike)
	require.InDelta(t, 125.5*58000, ins.NotionalUSD, 1e-6)
	require.NotEqual(t, 0.00001, ins.Gamma) // overridden by BS
}

func TestBuildInstrumentKeepsFeedGreeksWhenBSInvalid(t *testing.T) {
	msgTime := time.Date(2025, time.May, 24, 8, 0, 0, 0, time.UTC) // at expiry: T=0
	data := json.RawMessage(`{
		"instrument_name":"BTC-24MAY25-60000-P",
		"timestamp":` + msgTimeMillis(msgTime) + `,
		"mark_iv":65.2,
		"open_interest":10,
		"greeks":{"gamma":0.00042}
	}`)
	_, ins, err := buildInstrument(data, 58000)
	require.NoError(t, err)
	require.Equal(t, 0.00042, ins.Gamma)
	require.Equal(t, 0.0, ins.Vanna)
}

func TestBuildInstrumentFillsOnlyMissingSecondOrderGreeks(t *testing.T) {
	msgTime := time.Date(2025, time.May, 23, 8, 0, 0, 0, time.UTC)
	data := json.RawMessage(`{
		"instrument_name":"BTC-24MAY25-60000-P",
		"timestamp":` + msgTimeMillis(msgTime) + `,
		"mark_iv":65.2,
		"open_interest":10,
		"greeks":{"gamma":0.00042,"vanna":1.5}
	}`)
	_, ins, err := buildInstrument(data, 58000)
	require.NoError(t, err)
	require.Equal(t, 1.5, ins.Vanna) // feed value preserved
	require.NotEqual(t, 0.0, ins.Charm) // filled from BS since feed omitted it
}

func TestBuildInstrumentRejectsMalformedInstrumentName(t *testing.T) {
	_, _, err := buildInstrument(json.RawMessage(`{"instrument_name":"garbage","timestamp":0}`), 58000)
	require.Error(t, err)
}

func TestBuildInstrumentUsesPayloadTimestampNotWallClock(t *testing.T) {
	// Expiry is 24MAY99 08:00 UTC (2099). The payload's own timestamp is at
	// expiry (T=0, BS invalid), even though the wall clock calling this
	// function is well before expiry — the result must follow the payload.
	payloadTime := time.Date(2099, time.May, 24, 8, 0, 0, 0, time.UTC)
	data := json.RawMessage(`{
		"instrument_name":"BTC-24MAY99-60000-P",
		"timestamp":` + msgTimeMillis(payloadTime) + `,
		"mark_iv":65.2,
		"open_interest":10,
		"greeks":{"gamma":0.00042}
	}`)
	_, ins, err := buildInstrument(data, 58000)
	require.NoError(t, err)
	require.Equal(t, 0.00042, ins.Gamma) // BS invalid at T=0, feed value kept
}

func msgTimeMillis(t time.Time) string {
	b, _ := json.Marshal(t.UnixMilli())
	return string(b)
}
