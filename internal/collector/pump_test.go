package collector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBookSummary(t *testing.T) {
	data := json.RawMessage(`[{"instrument_name":"BTC-24MAY25-60000-P","open_interest":12.5},{"instrument_name":"BTC-24MAY25-70000-C"}]`)
	items, err := parseBookSummary(data)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "BTC-24MAY25-60000-P", items[0].InstrumentName)
	require.NotNil(t, items[0].OpenInterest)
	require.Nil(t, items[1].OpenInterest)
}

func TestParseBookSummaryMalformed(t *testing.T) {
	_, err := parseBookSummary(json.RawMessage(`not-json`))
	require.Error(t, err)
}

func TestSplitRawPreservesElementCount(t *testing.T) {
	// S6 — Summary fan-out: a summaries entry of length 37 yields 37 rows.
	raw := make([]json.RawMessage, 37)
	for i := range raw {
		raw[i] = json.RawMessage(`{"instrument_name":"X"}`)
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)

	got := splitRaw(b)
	require.Len(t, got, 37)
}

func TestHasPrefix(t *testing.T) {
	require.True(t, hasPrefix("ticker.BTC-1-C.100ms", "ticker."))
	require.True(t, hasPrefix("deribit_price_index.btc_usd", "deribit_price_index"))
	require.False(t, hasPrefix("book", "book_summary"))
}
