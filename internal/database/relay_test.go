package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type streamStub struct {
	mock.Mock
}

func (s *streamStub) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	if err := s.Called(args.Values["analysis_id"]).Error(0); err != nil {
		return redis.NewStringResult("", err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

type outboxStub struct {
	mock.Mock
}

func (o *outboxStub) ClaimDue(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := o.Called(limit)
	events, _ := args.Get(0).([]*OutboxEvent)
	return events, args.Error(1)
}

func (o *outboxStub) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return o.Called(id).Error(0)
}

func (o *outboxStub) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return o.Called(id, err).Error(0)
}

func completedEvent(analysisID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateAnalysis,
		AggregateID:   analysisID,
		EventType:     EventAnalysisCompleted,
		Payload:       json.RawMessage(`{"platform":"flipkart","product_name":"Pigeon Kettle","current_price":649,"recommendation":"WAIT"}`),
		TargetStream:  "stream:analysis",
		RetryCount:    1,
		CreatedAt:     time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func relayWithBatch(streams RedisClient, outbox OutboxRepo, batch int) *Relay {
	return NewRelay(outbox, streams, nil, RelayConfig{PollInterval: 20 * time.Millisecond, BatchSize: batch})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		events        []*OutboxEvent
		rejected      map[string]bool
		wantPublished int
		wantFailed    int
	}{
		{
			name:          "all delivered",
			events:        []*OutboxEvent{completedEvent("run-1"), completedEvent("run-2")},
			wantPublished: 2,
		},
		{
			name:          "one rejected by redis",
			events:        []*OutboxEvent{completedEvent("run-1"), completedEvent("run-2")},
			rejected:      map[string]bool{"run-1": true},
			wantPublished: 1,
			wantFailed:    1,
		},
		{
			name: "empty outbox",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streams := &streamStub{}
			outbox := &outboxStub{}
			outbox.On("ClaimDue", 10).Return(tt.events, nil).Once()

			for _, e := range tt.events {
				if tt.rejected[e.AggregateID] {
					streams.On("XAdd", e.AggregateID).Return(errors.New("OOM command not allowed"))
					outbox.On("MarkFailed", e.ID, mock.MatchedBy(func(err error) bool {
						return err.Error() == "failed to publish to redis: OOM command not allowed"
					})).Return(nil)
					continue
				}
				streams.On("XAdd", e.AggregateID).Return(nil)
				outbox.On("MarkProcessed", e.ID).Return(nil)
			}

			published, failed, err := relayWithBatch(streams, outbox, 10).drain(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPublished, published)
			assert.Equal(t, tt.wantFailed, failed)
			streams.AssertExpectations(t)
			outbox.AssertExpectations(t)
		})
	}
}

func TestRelay_DrainFetchesUntilShortBatch(t *testing.T) {
	streams := &streamStub{}
	outbox := &outboxStub{}

	first := []*OutboxEvent{completedEvent("run-1"), completedEvent("run-2")}
	second := []*OutboxEvent{completedEvent("run-3")}
	outbox.On("ClaimDue", 2).Return(first, nil).Once()
	outbox.On("ClaimDue", 2).Return(second, nil).Once()

	for _, e := range append(first, second...) {
		streams.On("XAdd", e.AggregateID).Return(nil)
		outbox.On("MarkProcessed", e.ID).Return(nil)
	}

	published, failed, err := relayWithBatch(streams, outbox, 2).drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, published)
	assert.Zero(t, failed)
	outbox.AssertNumberOfCalls(t, "ClaimDue", 2)
}

func TestRelay_DrainOutboxError(t *testing.T) {
	outbox := &outboxStub{}
	outbox.On("ClaimDue", 10).Return(nil, errors.New("connection refused"))

	_, _, err := relayWithBatch(&streamStub{}, outbox, 10).drain(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRelay_MalformedPayloadIsMarkedFailed(t *testing.T) {
	event := completedEvent("run-1")
	event.Payload = json.RawMessage(`{"platform":`)

	streams := &streamStub{}
	outbox := &outboxStub{}
	outbox.On("MarkFailed", event.ID, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, errMalformedPayload)
	})).Return(nil)

	err := relayWithBatch(streams, outbox, 10).deliver(context.Background(), event)
	assert.ErrorIs(t, err, errMalformedPayload)
	streams.AssertNotCalled(t, "XAdd", mock.Anything)
	outbox.AssertExpectations(t)
}

func TestRelay_StreamArgs(t *testing.T) {
	event := completedEvent("run-9")
	args, err := relayWithBatch(&streamStub{}, &outboxStub{}, 10).streamArgs(event)
	require.NoError(t, err)

	assert.Equal(t, "stream:analysis", args.Stream)
	assert.Equal(t, int64(defaultStreamMaxLen), args.MaxLen)
	assert.True(t, args.Approx)
	assert.Equal(t, "flipkart", args.Values["platform"])
	assert.Equal(t, "WAIT", args.Values["recommendation"])
	assert.Equal(t, "run-9", args.Values["analysis_id"])

	var envelope StreamEnvelope
	require.NoError(t, json.Unmarshal([]byte(args.Values["envelope"].(string)), &envelope))
	assert.Equal(t, event.ID.String(), envelope.EventID)
	assert.Equal(t, EventAnalysisCompleted, envelope.Type)
	assert.Equal(t, 2, envelope.Attempt)
	assert.Equal(t, relaySource, envelope.Source)
	assert.True(t, envelope.OccurredAt.Equal(event.CreatedAt))
	assert.JSONEq(t, string(event.Payload), string(envelope.Analysis))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	outbox := &outboxStub{}
	outbox.On("ClaimDue", 10).Return([]*OutboxEvent{}, nil).Maybe()

	relay := relayWithBatch(&streamStub{}, outbox, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
	outbox.AssertCalled(t, "ClaimDue", 10)
}
