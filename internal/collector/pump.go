package collector

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// messagePump reads inbound frames until ctx is cancelled or the connection
// errors. Book-summary payloads update the shared latest-summary buffer and
// signal the subscription manager; price-index and ticker payloads are
// forwarded verbatim to the raw stream. RPC replies are logged and ignored;
// heartbeats receive a public/test reply. An idle connection (no message for
// 5s) triggers a public/set_heartbeat request.
func (c *Collector) messagePump(ctx context.Context, conn *websocket.Conn, freshSummary chan<- struct{}) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(idleHeartbeatAfter))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				if sendErr := c.sendHeartbeatRequest(conn); sendErr != nil {
					return sendErr
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Printf("collector: unparseable message, dropping: %v", err)
			continue
		}

		switch {
		case env.Method == "subscription":
			c.handleSubscriptionPush(ctx, raw, env, freshSummary)
		case env.Method == "heartbeat":
			c.handleHeartbeat(conn, env)
		case len(env.ID) > 0 && env.Error != nil:
			c.logger.Printf("collector: RPC error reply id=%s: %s", string(env.ID), env.Error.Message)
		case len(env.ID) > 0:
			// RPC success reply (subscribe/unsubscribe/ping ack). Logged, ignored.
			c.logger.Printf("collector: RPC reply id=%s", string(env.ID))
		default:
			c.logger.Printf("collector: unrecognised message, dropping")
		}
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Collector) handleSubscriptionPush(ctx context.Context, raw []byte, env inboundEnvelope, freshSummary chan<- struct{}) {
	var params subParams
	if err := json.Unmarshal(env.Params, &params); err != nil || params.Channel == "" {
		c.logger.Printf("collector: subscription push missing channel/data, dropping")
		return
	}

	switch {
	case hasPrefix(params.Channel, "book_summary"):
		items, err := parseBookSummary(params.Data)
		if err != nil {
			c.logger.Printf("collector: unparseable book summary, dropping: %v", err)
			return
		}
		c.mu.Lock()
		c.latestSummary = items
		c.mu.Unlock()

		select {
		case freshSummary <- struct{}{}:
		default:
		}

		out := summariesRecord{TS: nowSeconds(), SummaryData: splitRaw(params.Data)}
		payload, err := json.Marshal(out)
		if err != nil {
			c.logger.Printf("collector: marshalling summary record failed: %v", err)
			return
		}
		if _, err := c.log.Add(ctx, StreamSummaries, payload); err != nil {
			c.logger.Printf("collector: writing to %s failed: %v", StreamSummaries, err)
		}

	case hasPrefix(params.Channel, "deribit_price_index"), hasPrefix(params.Channel, "ticker."):
		if _, err := c.log.Add(ctx, StreamRaw, raw); err != nil {
			c.logger.Printf("collector: writing to %s failed: %v", StreamRaw, err)
		}

	default:
		// Unrecognised channel: ignore.
	}
}

func (c *Collector) handleHeartbeat(conn *websocket.Conn, env inboundEnvelope) {
	var hb heartbeatParamsIn
	_ = json.Unmarshal(env.Params, &hb)
	if hb.Type != "test_request" {
		return
	}
	req := newRequest(c.ids.NextString(), "public/test", struct{}{})
	if err := writeJSON(conn, req); err != nil {
		c.logger.Printf("collector: replying to test_request failed: %v", err)
	}
}

func (c *Collector) sendHeartbeatRequest(conn *websocket.Conn) error {
	req := newRequest(c.ids.NextString(), "public/set_heartbeat", heartbeatParams{Interval: 15})
	return writeJSON(conn, req)
}

// subscriptionManager keeps the ticker working set synchronised with the
// top-N instruments by open interest from the latest book-summary snapshot.
// It runs on every fresh summary and on a periodic floor, whichever comes
// first, and is cancelled via ctx.
func (c *Collector) subscriptionManager(ctx context.Context, conn *websocket.Conn, active map[string]struct{}, freshSummary <-chan struct{}) {
	interval := c.cfg.RefreshInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-freshSummary:
			c.resync(conn, active)
		case <-ticker.C:
			c.resync(conn, active)
		}
	}
}

func (c *Collector) resync(conn *websocket.Conn, active map[string]struct{}) {
	c.mu.Lock()
	summary := c.latestSummary
	c.mu.Unlock()

	desired := topN(summary, c.cfg.MaxInstruments)
	toAdd, toRemove := diffSubscriptions(active, desired)
	if len(toAdd) == 0 && len(toRemove) == 0 {
		return
	}

	for _, batch := range chunk(toRemove) {
		channels := make([]string, len(batch))
		for i, name := range batch {
			channels[i] = tickerChannel(name)
		}
		if err := c.sendSubscribe(conn, "public/unsubscribe", channels); err != nil {
			c.logger.Printf("collector: unsubscribe chunk failed: %v", err)
			continue
		}
		for _, name := range batch {
			delete(active, name)
		}
		time.Sleep(chunkGap)
	}

	for _, batch := range chunk(toAdd) {
		channels := make([]string, len(batch))
		for i, name := range batch {
			channels[i] = tickerChannel(name)
		}
		if err := c.sendSubscribe(conn, "public/subscribe", channels); err != nil {
			c.logger.Printf("collector: subscribe chunk failed: %v", err)
			continue
		}
		for _, name := range batch {
			active[name] = struct{}{}
		}
		time.Sleep(chunkGap)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// splitRaw decodes a JSON array into its individual raw elements, preserving
// every field of each instrument summary for the warehouse writer.
func splitRaw(data json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}
