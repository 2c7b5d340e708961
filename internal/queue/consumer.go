// Package queue is the durable work-queue client for call requests, backed
// by a Redis Stream consumer group. Delivery is at-least-once: entries must
// be acknowledged explicitly, unacknowledged entries are redelivered after
// the ack-wait elapses, and entries that exhaust their delivery budget are
// routed to a dead-letter stream.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxhive/callbridge/internal/call"
)

// Config controls the consumer-group subscription.
type Config struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string

	// MaxDeliver is the delivery budget per entry, counting the first
	// delivery. Entries seen more often are dead-lettered.
	MaxDeliver int64

	// AckWait is how long an entry may stay unacknowledged before it is
	// eligible for redelivery.
	AckWait time.Duration
}

// stream is the consumer-group command surface the consumer drives, split
// out so redelivery scenarios can be scripted in tests without a server.
type stream interface {
	ensureGroup(ctx context.Context) error
	readNew(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error)
	pending(ctx context.Context, count int64) ([]redis.XPendingExt, error)
	claim(ctx context.Context, ids []string) ([]redis.XMessage, error)
	appendEntry(ctx context.Context, streamName string, values map[string]any) error
	ack(ctx context.Context, id string) error
}

// Message wraps one dequeued call request. Ack must be called exactly once
// per message the application has taken responsibility for.
type Message struct {
	req        call.Request
	id         string
	deliveries int64
	c          *Consumer
}

// Request returns the decoded call request.
func (m *Message) Request() call.Request { return m.req }

// Deliveries returns how many times this entry has been delivered.
func (m *Message) Deliveries() int64 { return m.deliveries }

// Ack acknowledges the entry so the group never redelivers it.
func (m *Message) Ack(ctx context.Context) error {
	return m.c.ack(ctx, m.id)
}

// Consumer is a durable pull consumer over the call-request stream.
type Consumer struct {
	s   stream
	cfg Config
	log *slog.Logger
}

// New creates a Consumer over a Redis client. Call Init once before fetching.
func New(rdb *redis.Client, cfg Config, log *slog.Logger) *Consumer {
	return &Consumer{s: &redisStream{rdb: rdb, cfg: cfg}, cfg: cfg, log: log}
}

// Init creates the consumer group at the start of the stream. An existing
// group is left untouched, so acknowledgment progress survives restarts.
func (c *Consumer) Init(ctx context.Context) error {
	if err := c.s.ensureGroup(ctx); err != nil {
		return fmt.Errorf("creating consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// FetchBatch returns up to max pending call requests, waiting at most block
// for new entries. Entries whose ack-wait elapsed are reclaimed first; an
// empty batch on timeout is normal.
func (c *Consumer) FetchBatch(ctx context.Context, max int, block time.Duration) ([]*Message, error) {
	msgs, err := c.reclaim(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(msgs) >= max {
		return msgs, nil
	}

	entries, err := c.s.readNew(ctx, int64(max-len(msgs)), block)
	if err != nil {
		return msgs, fmt.Errorf("reading from %s: %w", c.cfg.Stream, err)
	}
	for _, entry := range entries {
		if msg, ok := c.decode(ctx, entry, 1); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// reclaim takes over entries other deliveries left unacknowledged past the
// ack-wait and dead-letters the ones that exhausted their delivery budget.
func (c *Consumer) reclaim(ctx context.Context, max int) ([]*Message, error) {
	pending, err := c.s.pending(ctx, int64(max))
	if err != nil {
		return nil, fmt.Errorf("inspecting pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	retries := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		retries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := c.s.claim(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("claiming stale entries: %w", err)
	}

	var msgs []*Message
	for _, entry := range claimed {
		// Claiming bumps the delivery counter
		deliveries := retries[entry.ID] + 1
		if exhausted(deliveries, c.cfg.MaxDeliver) {
			c.deadLetter(ctx, entry, deliveries)
			continue
		}
		if msg, ok := c.decode(ctx, entry, deliveries); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// exhausted reports whether an entry delivered n times has used up a budget
// of maxDeliver deliveries.
func exhausted(n, maxDeliver int64) bool {
	return maxDeliver > 0 && n > maxDeliver
}

// decode parses the entry payload. Undecodable entries are poison: they are
// acknowledged and logged so the group does not redeliver them forever.
func (c *Consumer) decode(ctx context.Context, entry redis.XMessage, deliveries int64) (*Message, bool) {
	payload, _ := entry.Values["payload"].(string)
	req, err := call.ParseRequest([]byte(payload))
	if err != nil {
		c.log.Warn("dropping undecodable queue entry", "id", entry.ID, "error", err)
		if err := c.ack(ctx, entry.ID); err != nil {
			c.log.Warn("acking undecodable entry", "id", entry.ID, "error", err)
		}
		return nil, false
	}
	return &Message{req: req, id: entry.ID, deliveries: deliveries, c: c}, true
}

// deadLetter moves an exhausted entry to the dead-letter stream and
// acknowledges it. Dead-lettered entries are logged, never retried.
func (c *Consumer) deadLetter(ctx context.Context, entry redis.XMessage, deliveries int64) {
	c.log.Warn("dead-lettering queue entry",
		"id", entry.ID, "deliveries", deliveries, "stream", c.cfg.DeadLetterStream)

	if c.cfg.DeadLetterStream != "" {
		if err := c.s.appendEntry(ctx, c.cfg.DeadLetterStream, entry.Values); err != nil {
			c.log.Warn("writing dead-letter entry", "id", entry.ID, "error", err)
		}
	}
	if err := c.ack(ctx, entry.ID); err != nil {
		c.log.Warn("acking dead-lettered entry", "id", entry.ID, "error", err)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) error {
	if err := c.s.ack(ctx, id); err != nil {
		return fmt.Errorf("acking entry %s: %w", id, err)
	}
	return nil
}
