package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the number of failed publishes after which an event
	// is parked as dead letter.
	MaxRetryCount = 5

	maxRetryDelay = 5 * time.Minute

	// claimLease is how long a claimed event stays invisible to other
	// pollers before it may be claimed again.
	claimLease = time.Minute
)

// OutboxEvent is a row of the transactional outbox.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

type OutboxRepository struct {
	db     *DB
	stream string
}

// NewOutboxRepository uses stream for events that do not name a target.
func NewOutboxRepository(db *DB, stream string) *OutboxRepository {
	return &OutboxRepository{db: db, stream: stream}
}

// InsertWithTx writes event inside tx so it commits together with the
// state change it describes.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = r.stream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := tx.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// ClaimDue leases up to limit events that are due for publishing, oldest
// first. Claimed rows have next_retry_at pushed out by claimLease, so a
// second relay polling the same table skips them until the lease runs out.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	now := time.Now()

	rows, err := r.db.pool.Query(ctx, `
		UPDATE outbox_event AS o
		SET next_retry_at = $4
		FROM (
			SELECT id FROM outbox_event
			WHERE status IN ($1, $2) AND next_retry_at <= $3
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		) AS due
		WHERE o.id = due.id
		RETURNING `+outboxColumns("o"),
		OutboxStatusPending, OutboxStatusFailed, now, now.Add(claimLease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxEvent])
	if err != nil {
		return nil, fmt.Errorf("failed to collect outbox events: %w", err)
	}

	// RETURNING does not keep the subquery order.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func outboxColumns(alias string) string {
	cols := []string{
		"id", "aggregate_type", "aggregate_id", "event_type",
		"payload", "target_stream", "status", "retry_count",
		"error_message", "created_at", "processed_at", "next_retry_at",
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = $2 WHERE id = $3`,
		OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// MarkFailed records processErr and schedules a retry with exponential
// backoff, or parks the event once MaxRetryCount is reached.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var retryCount int
		err := tx.QueryRow(ctx,
			`SELECT retry_count FROM outbox_event WHERE id = $1 FOR UPDATE`, id).Scan(&retryCount)
		if err != nil {
			return fmt.Errorf("failed to get retry count: %w", err)
		}

		retryCount++
		status, next := nextAttempt(retryCount, time.Now())

		_, err = tx.Exec(ctx, `
			UPDATE outbox_event
			SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
			WHERE id = $5`,
			status, retryCount, processErr.Error(), next, id)
		if err != nil {
			return fmt.Errorf("failed to mark event as failed: %w", err)
		}
		return nil
	})
}

// Backlog counts events still waiting to be published and those parked as
// dead letter.
func (r *OutboxRepository) Backlog(ctx context.Context) (pending, dead int64, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($1, $2)),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_event`

	err = r.db.pool.QueryRow(ctx, query, OutboxStatusPending, OutboxStatusFailed, OutboxStatusDeadLetter).
		Scan(&pending, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count outbox backlog: %w", err)
	}
	return pending, dead, nil
}

// nextAttempt returns the status and retry time after the retryCount-th
// failure: 2s, 4s, 8s... capped at five minutes.
func nextAttempt(retryCount int, now time.Time) (string, time.Time) {
	status := OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}

	delay := maxRetryDelay
	if retryCount < 9 {
		delay = min(time.Duration(1<<retryCount)*time.Second, maxRetryDelay)
	}
	return status, now.Add(delay)
}
