package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	relaySource = "marketplace-analyzer"

	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 100
	defaultStreamMaxLen = 100_000
	maxBatchesPerTick   = 10
)

var errMalformedPayload = errors.New("malformed event payload")

// RedisClient is the subset of the go-redis client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxRepo is the subset of OutboxRepository the relay uses.
type OutboxRepo interface {
	ClaimDue(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// StreamEnvelope is the JSON body of every stream entry.
type StreamEnvelope struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	AnalysisID string          `json:"analysis_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Attempt    int             `json:"attempt"`
	Source     string          `json:"source"`
	Analysis   json.RawMessage `json:"analysis"`
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen caps each stream (approximate trimming); 0 uses the default.
	StreamMaxLen int64
}

// Relay drains pending analysis events from the outbox into Redis streams.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
	}
}

// Run drains the outbox once, then on every poll tick, until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay running", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, _, err := r.drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("failed to drain outbox", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain publishes batches until one comes back short, so a backlog clears
// without waiting a full poll interval per batch.
func (r *Relay) drain(ctx context.Context) (published, failed int, err error) {
	for range maxBatchesPerTick {
		events, err := r.outbox.ClaimDue(ctx, r.cfg.BatchSize)
		if err != nil {
			return published, failed, fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			if err := r.deliver(ctx, event); err != nil {
				failed++
				r.logger.Warn("event not delivered",
					"event_id", event.ID,
					"analysis_id", event.AggregateID,
					"attempt", event.RetryCount+1,
					"error", err)
				continue
			}
			published++
		}

		if len(events) < r.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}

	if published+failed > 0 {
		r.logger.Info("outbox drained", "published", published, "failed", failed)
	}
	return published, failed, nil
}

func (r *Relay) deliver(ctx context.Context, event *OutboxEvent) error {
	args, err := r.streamArgs(event)
	if err == nil {
		err = r.redis.XAdd(ctx, args).Err()
		if err != nil {
			err = fmt.Errorf("failed to publish to redis: %w", err)
		}
	}

	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked processed: %w", err)
	}
	return nil
}

// streamArgs builds the XADD for event. Stream fields other than the
// envelope exist so consumers can filter without decoding JSON.
func (r *Relay) streamArgs(event *OutboxEvent) (*redis.XAddArgs, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("%w: event %s", errMalformedPayload, event.ID)
	}

	var summary struct {
		Platform       string `json:"platform"`
		Recommendation string `json:"recommendation"`
	}
	_ = json.Unmarshal(event.Payload, &summary)

	envelope, err := json.Marshal(StreamEnvelope{
		EventID:    event.ID.String(),
		Type:       event.EventType,
		AnalysisID: event.AggregateID,
		OccurredAt: event.CreatedAt.UTC(),
		Attempt:    event.RetryCount + 1,
		Source:     relaySource,
		Analysis:   event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: r.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"envelope":       string(envelope),
			"type":           event.EventType,
			"analysis_id":    event.AggregateID,
			"platform":       summary.Platform,
			"recommendation": summary.Recommendation,
		},
	}, nil
}
