package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relaySource = "product-sourcing"

// maxDrainRounds bounds how many full pages one tick may relay.
const maxDrainRounds = 10

type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	Counts(ctx context.Context) (pending, deadLetter int64, err error)
}

// StreamEnvelope is the JSON stored in the "data" field of every stream entry.
type StreamEnvelope struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	AggregateType string           `json:"aggregate_type"`
	AggregateID   string           `json:"aggregate_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Payload       json.RawMessage  `json:"payload"`
	Metadata      EnvelopeMetadata `json:"metadata"`
}

type EnvelopeMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen approximately trims each stream on publish. Zero keeps everything.
	StreamMaxLen int64
}

// Relay copies committed outbox events onto their Redis streams. Delivery is
// at least once: an event is marked processed only after XADD succeeds.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(redisClient RedisClient, outbox OutboxRepo, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
	}
}

// Start relays once immediately and then on every poll tick until ctx ends.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.drain(ctx); err != nil {
			r.logger.Error("relay cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain relays page after page while the outbox keeps returning full pages.
func (r *Relay) drain(ctx context.Context) (int, error) {
	total := 0
	for round := 0; round < maxDrainRounds; round++ {
		events, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to get pending events: %w", err)
		}

		published := 0
		for _, event := range events {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			if r.relay(ctx, event) {
				published++
			}
		}
		total += published

		if len(events) < r.cfg.BatchSize || published == 0 {
			break
		}
	}

	if total > 0 {
		r.logger.Debug("relay cycle finished", "published", total)
	}
	return total, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) bool {
	logger := r.logger.With("event_id", event.ID, "aggregate_id", event.AggregateID)

	streamID, err := r.publish(ctx, event)
	if err != nil {
		logger.Warn("failed to publish event", "retry_count", event.RetryCount, "error", err)
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			logger.Error("failed to mark event as failed", "error", markErr)
		}
		return false
	}

	// The entry is already on the stream; a failed mark means it is sent again later.
	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		logger.Error("failed to mark event as processed", "stream_id", streamID, "error", err)
		return false
	}

	logger.Info("event published", "event_type", event.EventType, "stream", event.TargetStream, "stream_id", streamID)
	return true
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) (string, error) {
	data, err := json.Marshal(StreamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC(),
		Payload:       event.Payload,
		Metadata: EnvelopeMetadata{
			Source:       relaySource,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode stream entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"data":           string(data),
			"timestamp":      fmt.Sprintf("%d", event.CreatedAt.UnixNano()),
			"original_id":    event.ID.String(),
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
			"event_type":     event.EventType,
		},
	}
	if r.cfg.StreamMaxLen > 0 {
		args.MaxLen = r.cfg.StreamMaxLen
		args.Approx = true
	}

	id, err := r.redis.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to redis: %w", err)
	}
	return id, nil
}

// Counts reports the outbox backlog and the dead-letter size.
func (r *Relay) Counts(ctx context.Context) (pending, deadLetter int64, err error) {
	return r.outbox.Counts(ctx)
}
