package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMetricsRow(t *testing.T) {
	row, err := decodeMetricsRow([]byte(`{"ts":1.5,"price":65000,"msg_rate":42,"NGI":-1.2,"VSS":3.4,"CHL_24h":0.1,"VOLG":0.2,"flip_pct":0.05,"HPP":-0.9,"scenario":"Neutral"}`))
	require.NoError(t, err)
	require.Equal(t, 65000.0, row.Price)
	require.Equal(t, int32(42), row.MsgRate)
	require.NotNil(t, row.FlipPct)
	require.InDelta(t, 0.05, *row.FlipPct, 1e-9)
	require.Equal(t, "Neutral", row.Scenario)
}

func TestDecodeMetricsRowNullFlipPct(t *testing.T) {
	row, err := decodeMetricsRow([]byte(`{"ts":1,"price":1,"msg_rate":0,"NGI":0,"VSS":0,"CHL_24h":0,"VOLG":0,"flip_pct":null,"HPP":0,"scenario":"Gamma Pin"}`))
	require.NoError(t, err)
	require.Nil(t, row.FlipPct)
}

func TestDecodeMetricsRowMalformed(t *testing.T) {
	_, err := decodeMetricsRow([]byte(`not-json`))
	require.Error(t, err)
}

// S6 — Summary fan-out: a summaries entry of length 37 yields 37 rows, all
// sharing the same received_ts.
func TestDecodeSummariesEntryFanOut(t *testing.T) {
	items := make([]byte, 0, 4096)
	items = append(items, '[')
	for i := 0; i < 37; i++ {
		if i > 0 {
			items = append(items, ',')
		}
		items = append(items, []byte(`{"instrument_name":"BTC-24MAY25-60000-P","open_interest":12.5}`)...)
	}
	items = append(items, ']')

	payload := append([]byte(`{"ts":1753700000.0,"summary_data":`), items...)
	payload = append(payload, '}')

	rows, err := decodeSummariesEntry(payload)
	require.NoError(t, err)
	require.Len(t, rows, 37)
	for _, r := range rows {
		require.Equal(t, 1753700000.0, r.ReceivedTS)
		require.Equal(t, "BTC-24MAY25-60000-P", r.InstrumentName)
	}
}

func TestDecodeSummariesEntryMalformed(t *testing.T) {
	_, err := decodeSummariesEntry([]byte(`not-json`))
	require.Error(t, err)
}
