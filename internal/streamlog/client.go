// Package streamlog wraps the Redis-stream primitives (XADD, XREADGROUP,
// XACK, XGROUP CREATE) the three pipeline stages use to exchange data. Every
// stream entry carries its payload under a single field named "d", per the
// wire format in spec.md §6.
package streamlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const dataField = "d"

// Client is a thin wrapper over *redis.Client exposing only the stream
// operations this pipeline needs.
type Client struct {
	rdb *redis.Client
}

// New connects to the Redis endpoint named by url (a redis:// URL).
func New(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed *redis.Client, for tests that
// point at a miniredis instance or similar.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// WaitReady pings Redis up to retries times, sleeping delay between
// attempts, and reports whether it became reachable. This mirrors the
// source implementation's wait_for_redis startup gate (SPEC_FULL.md §12).
func (c *Client) WaitReady(ctx context.Context, retries int, delay time.Duration) bool {
	for i := 0; i < retries; i++ {
		if err := c.rdb.Ping(ctx).Err(); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
	return false
}

// Add appends a raw payload to stream under the "d" field. Errors are the
// caller's to log: writes are best-effort for the collector and must block
// for at-least-once stages, so this layer never decides the policy.
func (c *Client) Add(ctx context.Context, stream string, payload []byte) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{dataField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("XADD %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates a consumer group at startID ("$" for new messages
// only, "0" to replay from the start), treating "group already exists"
// (BUSYGROUP) as success.
func (c *Client) EnsureGroup(ctx context.Context, stream, group, startID string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("XGROUP CREATE %s/%s: %w", stream, group, err)
	}
	return nil
}

// Entry is one delivered stream message.
type Entry struct {
	ID      string
	Payload []byte
}

// ErrEmptyPayload is returned by Entry.Require when a delivered entry has no
// "d" field.
var ErrEmptyPayload = errors.New("stream entry has no \"d\" field")

// Require returns the entry's payload, or ErrEmptyPayload if the "d" field
// was absent or empty. Consumers use this to distinguish a genuinely empty
// write from a payload that merely failed to parse.
func (e Entry) Require() ([]byte, error) {
	if len(e.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return e.Payload, nil
}

// ReadGroup reads up to count new (never-delivered) messages for consumer in
// group on stream, blocking up to block for new data; entries already
// delivered but not acked are not re-read. It returns an empty, nil-error
// slice on a read timeout (no messages available).
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("XREADGROUP %s/%s: %w", stream, group, err)
	}
	var entries []Entry
	for _, streamResult := range res {
		for _, msg := range streamResult.Messages {
			raw, _ := msg.Values[dataField].(string)
			entries = append(entries, Entry{ID: msg.ID, Payload: []byte(raw)})
		}
	}
	return entries, nil
}

// Ack acknowledges one or more message ids in group on stream in a single
// call.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("XACK %s/%s: %w", stream, group, err)
	}
	return nil
}
