package warehouse

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// pendingSummary groups the rows produced by one summaries-stream entry with
// the entry's id, so a batch flush acks exactly the ids whose rows it
// inserted.
type pendingSummary struct {
	id   string
	rows []instrumentSummaryRow
}

// runSummariesStream mirrors runMetricsStream, but each entry expands into N
// rows (one per instrument summary) sharing the entry's outer ts as
// received_ts; batch_size is measured in rows, matching dealer_flow_metrics_v1.
func (w *Writer) runSummariesStream(ctx context.Context) {
	var pending []pendingSummary
	rowTotal := 0
	batchStart := time.Now()

	for {
		if ctx.Err() != nil {
			w.flushSummariesBestEffort(pending)
			return
		}

		entries, err := w.log.ReadGroup(ctx, streamSummaries, consumerGroup, consumerName, w.batchSize(), readBlock)
		if err != nil {
			if ctx.Err() != nil {
				w.flushSummariesBestEffort(pending)
				return
			}
			w.logger.Printf("warehouse: summaries read failed: %v, retrying in %s", err, retryBackoff)
			select {
			case <-ctx.Done():
				w.flushSummariesBestEffort(pending)
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
			rows, err := decodeSummariesEntry(payload)
			if err != nil {
				w.logger.Printf("warehouse: malformed summaries entry %s, dropping: %v", entry.ID, err)
				malformed = append(malformed, entry.ID)
				continue
			}
			if rowTotal == 0 {
				batchStart = time.Now()
			}
			pending = append(pending, pendingSummary{id: entry.ID, rows: rows})
			rowTotal += len(rows)
		}
		if len(malformed) > 0 {
			if err := w.log.Ack(ctx, streamSummaries, consumerGroup, malformed...); err != nil {
				w.logger.Printf("warehouse: acking malformed summaries entries failed: %v", err)
			}
		}

		if rowTotal == 0 {
			continue
		}
		if rowTotal < w.batchSize() && time.Since(batchStart) < w.cfg.batchMaxAge() {
			continue
		}

		if w.flushSummaries(ctx, pending) {
			pending = nil
			rowTotal = 0
		} else {
			select {
			case <-ctx.Done():
				w.flushSummariesBestEffort(pending)
				return
			case <-time.After(retryBackoff):
			}
		}
	}
}

// flushSummaries inserts every pending entry's rows and acks their ids on
// success (one XACK call, per the §8 summary fan-out invariant).
func (w *Writer) flushSummaries(ctx context.Context, pending []pendingSummary) bool {
	ctx, span := w.tracer.Start(ctx, tracesNamespace+".flush_summaries")
	defer span.End()

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO deribit_instrument_summaries_v1")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: preparing summaries batch failed: %v", err)
		return false
	}
	for _, p := range pending {
		for _, r := range p.rows {
			if err := batch.Append(
				r.InstrumentName, r.UnderlyingPrice, r.UnderlyingIndex, r.QuoteCurrency,
				r.OpenInterest, r.Volume, r.VolumeUSD, r.BidIV, r.AskIV, r.MarkIV,
				r.InterestRate, r.ReceivedTS,
			); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				w.logger.Printf("warehouse: appending summary row failed: %v", err)
				return false
			}
		}
	}
	if err := batch.Send(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: sending summaries batch failed: %v", err)
		return false
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.id
	}
	if err := w.log.Ack(ctx, streamSummaries, consumerGroup, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Printf("warehouse: acking summaries batch failed: %v", err)
		return false
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return true
}

func (w *Writer) flushSummariesBestEffort(pending []pendingSummary) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushMax)
	defer cancel()
	if !w.flushSummaries(ctx, pending) {
		w.logger.Printf("warehouse: best-effort shutdown flush of %d summary entries failed", len(pending))
	}
}
