package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sajpe/visitgate/internal/model"
)

const (
	// StreamKey is the Redis stream of submitted visits.
	StreamKey = "stream:visits"

	// DeadLetterStreamKey holds messages the worker could not decode.
	DeadLetterStreamKey = "stream:visits:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000
)

// Publisher appends visits to the Redis stream.
type Publisher struct {
	redis *redis.Client
}

// NewPublisher creates a Publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

// Name implements Sink.
func (p *Publisher) Name() string { return "stream" }

// Send implements Sink.
func (p *Publisher) Send(ctx context.Context, payload model.VisitPayload) error {
	_, err := p.Publish(ctx, payload)
	return err
}

// Publish adds payload to the stream and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, payload model.VisitPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}
