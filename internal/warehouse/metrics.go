package warehouse

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

type pendingMetric struct {
	id  string
	row metricsRow
}

// runMetricsStream reads the metrics stream as ch_writer_group/
// ch_writer_consumer_1, batching rows until batch_size or batch_max_age is
// reached, then inserts and acks. On shutdown it flushes whatever is pending
// best-effort.
func (w *Writer) runMetricsStream(ctx context.Context) {
	var pending []pendingMetric
	batchStart := time.Now()

	for {
		if ctx.Err() != nil {
			w.flushMetricsBestEffort(pending)
			return
		}

		entries, err := w.log.ReadGroup(ctx, streamMetrics, consumerGroup, consumerName, w.batchSize(), readBlock)
		if err != nil {
			if ctx.Err() != nil {
				w.flushMetricsBestEffort(pending)
				return
			}
			w.logger.Printf("warehouse: metrics read failed: %v, retrying in %s", err, retryBackoff)
			select {
			case <-ctx.Done():
				w.flushMetricsBestEffort(pending)
				return
			case <-time.After(retryBackoff):
			}
			continue
		}

		var malformed []string
		for _, entry := range entries {
			payload, err := entry.Require()
			if err != nil {
				w.logger.Printf("warehouse: %v, dropping", err)
				malformed = append(malformed, entry.ID)
				continue
			}
			row, err := decodeMetricsRow(payload)
			if err != nil {
				w.logger.Printf("warehouse: malformed metrics entry %s, dropping: %v", entry.ID, err)
				malformed = append(malformed, entry.ID)
				continue
			}
			if len(pending) == 0 {
				batchStart = time.Now()
			}
			pending = append(pending, pendingMetric{id: entry.ID, row: row})
		}
		// A malformed payload can never become insertable, so it is acked
		// immediately rather than held against a batch it will never join —
		// otherwise it would stall the consumer group's head forever.
		if len(malformed) > 0 {
			if err := w.log.Ack(ctx, streamMetrics, consumerGroup, malformed...); err != nil {
				w.logger.Printf("warehouse: acking malformed metrics entries failed: %v", err)
			}
		}

		if len(pending) == 0 {
			continue
		}
		if len(pending) < w.batchSize() && time.Since(batchStart) < w.cfg.batchMaxAge() {
			continue
		}

		if w.flushMetrics(ctx, pending) {
			pending = nil
		} else {
			select {
			case <-ctx.Done():
				w.flushMetricsBestEffort(pending)
				return
			case <-time.After(retryBackoff):
			}
		}
	}
}

// flushMetrics inserts the pending batch and acks its ids on success. It
// returns whether the flush succeeded; on failure the caller retries the
// same batch unchanged.
func (w *Writer) flushMetrics(ctx context.Context, pending []pendingMetric) bool {
	ctx, span := w.tracer.Start(ctx, tracesNamespace+".flush_metrics")
	defer span.End()

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO dealer_flow_metrics_v1")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: preparing metrics batch failed: %v", err)
		return false
	}
	for _, p := range pending {
		r := p.row
		if err := batch.Append(r.TS, r.Price, r.MsgRate, r.NGI, r.VSS, r.CHL24h, r.VOLG, r.FlipPct, r.HPP, r.Scenario); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.logger.Printf("warehouse: appending metrics row failed: %v", err)
			return false
		}
	}
	if err := batch.Send(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: sending metrics batch failed: %v", err)
		return false
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.id
	}
	if err := w.log.Ack(ctx, streamMetrics, consumerGroup, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: acking metrics batch failed: %v", err)
		return false
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return true
}

func (w *Writer) flushMetricsBestEffort(pending []pendingMetric) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushMax)
	defer cancel()
	if !w.flushMetrics(ctx, pending) {
		w.logger.Printf("warehouse: best-effort shutdown flush of %d metrics rows failed", len(pending))
	}
}
