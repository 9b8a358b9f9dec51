package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readBatch = 50
	// Pending entries idle this long are claimed again, from this consumer
	// or from one that died.
	claimMinIdle = 30 * time.Second
	claimEvery   = 30 * time.Second
)

// groupStream is the slice of a consumer group the loop needs.
type groupStream interface {
	read(ctx context.Context) ([]redis.XMessage, error)
	claim(ctx context.Context, start string) ([]redis.XMessage, string, error)
	ack(ctx context.Context, id string) error
}

type redisStream struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
}

func (s *redisStream) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.groupName,
		Consumer: s.consumerName,
		Streams:  []string{StreamCartaEvents, ">"},
		Count:    readBatch,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, st := range streams {
		msgs = append(msgs, st.Messages...)
	}
	return msgs, nil
}

func (s *redisStream) claim(ctx context.Context, start string) ([]redis.XMessage, string, error) {
	return s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamCartaEvents,
		Group:    s.groupName,
		Consumer: s.consumerName,
		MinIdle:  claimMinIdle,
		Start:    start,
		Count:    readBatch,
	}).Result()
}

func (s *redisStream) ack(ctx context.Context, id string) error {
	return s.rdb.XAck(ctx, StreamCartaEvents, s.groupName, id).Err()
}

// Consumer drains the cartas:events stream through a consumer group.
type Consumer struct {
	rdb        *redis.Client
	stream     groupStream
	claimEvery time.Duration
}

func NewConsumer(redisURL, consumerName string) (*Consumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	// Must exceed the XReadGroup block.
	opts.ReadTimeout = 10 * time.Second

	client := redis.NewClient(opts)
	err = client.XGroupCreateMkStream(context.Background(), StreamCartaEvents, GroupAudit, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		rdb:        client,
		stream:     &redisStream{rdb: client, groupName: GroupAudit, consumerName: consumerName},
		claimEvery: claimEvery,
	}, nil
}

// Consume blocks until ctx is done. Entries left pending by a failed
// handler, a crash or a dead consumer are claimed and handled again on
// start and then every claimEvery.
func (c *Consumer) Consume(ctx context.Context, handle func(context.Context, Event) error) error {
	c.replayPending(ctx, handle)
	lastClaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Since(lastClaim) >= c.claimEvery {
			c.replayPending(ctx, handle)
			lastClaim = time.Now()
		}

		msgs, err := c.stream.read(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Failed to read from stream", "stream", StreamCartaEvents, "error", err)
			time.Sleep(time.Second)
			continue
		}
		c.process(ctx, msgs, handle)
	}
}

// replayPending walks the group's pending list once.
func (c *Consumer) replayPending(ctx context.Context, handle func(context.Context, Event) error) {
	start := "0-0"
	for {
		msgs, next, err := c.stream.claim(ctx, start)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Failed to claim pending events", "stream", StreamCartaEvents, "error", err)
			}
			return
		}
		if len(msgs) > 0 {
			slog.Info("Replaying pending events", "count", len(msgs))
			c.process(ctx, msgs, handle)
		}
		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage, handle func(context.Context, Event) error) {
	for _, msg := range msgs {
		e, err := decodeMessage(msg.Values)
		if err != nil {
			slog.Error("Dropping malformed event", "message_id", msg.ID, "error", err)
			c.ack(ctx, msg.ID)
			continue
		}
		if err := handle(ctx, e); err != nil {
			slog.Error("Event handler failed, left pending", "event_id", e.ID, "letter_number", e.LetterNumber, "error", err)
			continue
		}
		c.ack(ctx, msg.ID)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.stream.ack(ctx, id); err != nil {
		slog.Error("Failed to ACK message", "message_id", id, "error", err)
	}
}

func (c *Consumer) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// StartConsumer runs a consumer persisting into store in the background
// and returns its stop function.
func StartConsumer(redisURL, consumerName string, store *Store) (stop func(), err error) {
	consumer, err := NewConsumer(redisURL, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Consume(ctx, store.Record); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Event consumer stopped with error", "error", err)
		}
	}()
	slog.Info("Event consumer started", "stream", StreamCartaEvents, "consumer", consumerName)

	return func() {
		cancel()
		_ = consumer.Close()
	}, nil
}
