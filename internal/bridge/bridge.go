// Package bridge is the orchestrator loop: it pulls call requests off the
// work queue, originates them on the switch, interprets the synchronous
// reply, and leaves asynchronous lifecycle progression to the event
// dispatcher.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhive/callbridge/internal/call"
	"github.com/voxhive/callbridge/internal/command"
	"github.com/voxhive/callbridge/internal/dispatcher"
	"github.com/voxhive/callbridge/internal/esl"
)

// Message is one dequeued call request awaiting acknowledgment.
type Message interface {
	Request() call.Request
	Ack(ctx context.Context) error
}

// Fetcher is the work-queue subset the loop needs.
type Fetcher interface {
	FetchBatch(ctx context.Context, max int, block time.Duration) ([]Message, error)
}

// Sender is the synchronous command channel to the switch.
type Sender interface {
	SendCommand(ctx context.Context, cmd string) (string, error)
}

// Config bounds each polling cycle.
type Config struct {
	BatchSize      int
	FetchWait      time.Duration
	CommandTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FetchWait <= 0 {
		c.FetchWait = 5 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	return c
}

// Orchestrator drives the synchronous phase of call origination.
type Orchestrator struct {
	queue Fetcher
	sw    Sender
	disp  *dispatcher.Dispatcher
	cfg   Config
	log   *slog.Logger
}

// New creates an Orchestrator.
func New(queue Fetcher, sw Sender, disp *dispatcher.Dispatcher, cfg Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		queue: queue,
		sw:    sw,
		disp:  disp,
		cfg:   cfg.withDefaults(),
		log:   log,
	}
}

// Run polls the queue until ctx is cancelled. Messages within a batch are
// processed in order; ordering across batches carries no correctness
// requirement.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := o.queue.FetchBatch(ctx, o.cfg.BatchSize, o.cfg.FetchWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.log.Warn("queue fetch failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, msg := range msgs {
			o.process(ctx, msg)
		}
	}
}

// process originates one call request and acknowledges the message
// regardless of outcome. Acking on application-level failure forfeits
// automatic retry, which is the intended trade-off: a redelivered originate
// would place a duplicate call.
func (o *Orchestrator) process(ctx context.Context, msg Message) {
	req := msg.Request()
	o.disp.Track(req.CallID)

	cmdCtx, cancel := context.WithTimeout(ctx, o.cfg.CommandTimeout)
	reply, err := o.sw.SendCommand(cmdCtx, command.BuildOriginate(req))
	cancel()

	switch {
	case err != nil:
		o.disp.Fail(ctx, req.CallID, failureReason(err))

	case strings.HasPrefix(reply, "+OK"):
		switchUUID := strings.TrimSpace(strings.TrimPrefix(reply, "+OK"))
		o.log.Info("call originated", "call_id", req.CallID,
			"switch_uuid", switchUUID, "to", req.ToNumber, "gateway", req.Gateway)
		o.disp.Begin(ctx, req.CallID, switchUUID)

	case strings.HasPrefix(reply, "-ERR"):
		reason := strings.TrimSpace(strings.TrimPrefix(reply, "-ERR"))
		o.log.Warn("originate rejected", "call_id", req.CallID, "reason", reason)
		o.disp.Fail(ctx, req.CallID, reason)

	default:
		o.log.Warn("unexpected switch reply", "call_id", req.CallID, "reply", reply)
		o.disp.Fail(ctx, req.CallID, "unexpected switch reply: "+reply)
	}

	if err := msg.Ack(ctx); err != nil {
		o.log.Warn("ack failed", "call_id", req.CallID, "error", err)
	}
}

// failureReason maps a transport-level send failure to the error message
// persisted on the call record.
func failureReason(err error) string {
	switch {
	case errors.Is(err, esl.ErrNotConnected):
		return "switch connection unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "originate command timed out"
	default:
		return err.Error()
	}
}
