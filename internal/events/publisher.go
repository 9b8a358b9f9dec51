package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher appends events to the cartas:events stream.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Publisher{rdb: redis.NewClient(opts)}, nil
}

// Record publishes e; the consumer persists it.
func (p *Publisher) Record(ctx context.Context, e Event) error {
	values, err := encodeMessage(e)
	if err != nil {
		return err
	}

	res := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamCartaEvents,
		MaxLen: 100000,
		Approx: true,
		ID:     "*",
		Values: values,
	})
	if res.Err() != nil {
		return fmt.Errorf("failed to publish to stream: %w", res.Err())
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}

func encodeMessage(e Event) (map[string]interface{}, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return map[string]interface{}{
		"payload":        string(payload),
		"published_at":   time.Now().Unix(),
		"schema_version": SchemaVersionV1,
	}, nil
}

func decodeMessage(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("message has no payload")
	}
	if v, ok := values["schema_version"].(string); ok && v != SchemaVersionV1 {
		return Event{}, fmt.Errorf("unsupported schema version %q", v)
	}

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, nil
}
