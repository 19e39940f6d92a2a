package warehouse

import (
	"encoding/json"
	"fmt"
)

// metricsRow is one row of dealer_flow_metrics_v1, decoded from a "metrics"
// stream entry. One entry produces exactly one row.
type metricsRow struct {
	TS       float64
	Price    float64
	MsgRate  int32
	NGI      float64
	VSS      float64
	CHL24h   float64
	VOLG     float64
	FlipPct  *float64
	HPP      float64
	Scenario string
}

type metricsWire struct {
	TS       float64  `json:"ts"`
	Price    float64  `json:"price"`
	MsgRate  int32    `json:"msg_rate"`
	NGI      float64  `json:"NGI"`
	VSS      float64  `json:"VSS"`
	CHL24h   float64  `json:"CHL_24h"`
	VOLG     float64  `json:"VOLG"`
	FlipPct  *float64 `json:"flip_pct"`
	HPP      float64  `json:"HPP"`
	Scenario string   `json:"scenario"`
}

func decodeMetricsRow(payload []byte) (metricsRow, error) {
	var w metricsWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return metricsRow{}, fmt.Errorf("decoding metrics entry: %w", err)
	}
	return metricsRow(w), nil
}

// instrumentSummaryRow is one row of deribit_instrument_summaries_v1: one
// book-summary entry, persisted unchanged, plus the receive timestamp of the
// enclosing summaries-stream message.
type instrumentSummaryRow struct {
	ReceivedTS      float64
	InstrumentName  string
	UnderlyingPrice float64
	UnderlyingIndex string
	QuoteCurrency   string
	OpenInterest    float64
	Volume          float64
	VolumeUSD       float64
	BidIV           float64
	AskIV           float64
	MarkIV          float64
	InterestRate    float64
}

type summaryItemWire struct {
	InstrumentName  string  `json:"instrument_name"`
	UnderlyingPrice float64 `json:"underlying_price"`
	UnderlyingIndex string  `json:"underlying_index"`
	QuoteCurrency   string  `json:"quote_currency"`
	OpenInterest    float64 `json:"open_interest"`
	Volume          float64 `json:"volume"`
	VolumeUSD       float64 `json:"volume_usd"`
	BidIV           float64 `json:"bid_iv"`
	AskIV           float64 `json:"ask_iv"`
	MarkIV          float64 `json:"mark_iv"`
	InterestRate    float64 `json:"interest_rate"`
}

type summariesEntryWire struct {
	TS          float64           `json:"ts"`
	SummaryData []json.RawMessage `json:"summary_data"`
}

// decodeSummariesEntry unpacks a "summaries" stream entry into its N
// constituent rows, each tagged with the entry's outer ts as received_ts.
func decodeSummariesEntry(payload []byte) ([]instrumentSummaryRow, error) {
	var entry summariesEntryWire
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("decoding summaries entry: %w", err)
	}
	rows := make([]instrumentSummaryRow, 0, len(entry.SummaryData))
	for _, raw := range entry.SummaryData {
		var item summaryItemWire
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decoding summary item: %w", err)
		}
		rows = append(rows, instrumentSummaryRow{
			ReceivedTS:      entry.TS,
			InstrumentName:  item.InstrumentName,
			UnderlyingPrice: item.UnderlyingPrice,
			UnderlyingIndex: item.UnderlyingIndex,
			QuoteCurrency:   item.QuoteCurrency,
			OpenInterest:    item.OpenInterest,
			Volume:          item.Volume,
			VolumeUSD:       item.VolumeUSD,
			BidIV:           item.BidIV,
			AskIV:           item.AskIV,
			MarkIV:          item.MarkIV,
			InterestRate:    item.InterestRate,
		})
	}
	return rows, nil
}
