package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStream drives the consumer-group commands against a live server.
// redis.Nil means "nothing there" for every read-side command and is
// normalized to an empty result here.
type redisStream struct {
	rdb *redis.Client
	cfg Config
}

func (r *redisStream) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (r *redisStream) readNew(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		Streams:  []string{r.cfg.Stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entries []redis.XMessage
	for _, s := range res {
		entries = append(entries, s.Messages...)
	}
	return entries, nil
}

func (r *redisStream) pending(ctx context.Context, count int64) ([]redis.XPendingExt, error) {
	res, err := r.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.AckWait,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (r *redisStream) claim(ctx context.Context, ids []string) ([]redis.XMessage, error) {
	res, err := r.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.AckWait,
		Messages: ids,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (r *redisStream) appendEntry(ctx context.Context, streamName string, values map[string]any) error {
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
	}).Err()
}

func (r *redisStream) ack(ctx context.Context, id string) error {
	return r.rdb.XAck(ctx, r.cfg.Stream, r.cfg.Group, id).Err()
}
