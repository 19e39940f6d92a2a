// Package processor consumes the raw message stream, maintains the
// per-instrument risk map, and publishes an aggregate dealer-positioning
// record once per second.
package processor

// AggregateRecord is the metrics-stream payload published once per publish
// cycle. Field names and JSON tags match the warehouse's
// dealer_flow_metrics_v1 columns.
type AggregateRecord struct {
	TS       float64  `json:"ts"`
	Price    float64  `json:"price"`
	MsgRate  int      `json:"msg_rate"`
	NGI      float64  `json:"NGI"`
	VSS      float64  `json:"VSS"`
	CHL24h   float64  `json:"CHL_24h"`
	VOLG     float64  `json:"VOLG"`
	FlipPct  *float64 `json:"flip_pct"`
	HPP      float64  `json:"HPP"`
	Scenario string   `json:"scenario"`
}
