package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/marketplace-analyzer/internal/models"
)

const (
	AggregateAnalysis      = "analysis"
	EventAnalysisCompleted = "ANALYSIS_COMPLETED"
)

// AnalysisCompleted is the payload of an ANALYSIS_COMPLETED event.
type AnalysisCompleted struct {
	AnalysisID       uuid.UUID             `json:"analysis_id"`
	SourceURL        string                `json:"source_url"`
	ResolvedURL      string                `json:"resolved_url"`
	Platform         models.Marketplace    `json:"platform"`
	ProductName      string                `json:"product_name"`
	CurrentPrice     *float64              `json:"current_price"`
	CheapestPrice    *float64              `json:"cheapest_price"`
	CheapestPlatform models.Marketplace    `json:"cheapest_platform,omitempty"`
	Recommendation   models.Recommendation `json:"recommendation"`
	PlatformsFound   []models.Marketplace  `json:"platforms_found"`
	AnalyzedAt       string                `json:"analyzed_at"`
}

// AnalysisStore persists successful analyses together with their outbox event.
type AnalysisStore struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewAnalysisStore(db *DB, outbox *OutboxRepository, logger *slog.Logger) *AnalysisStore {
	return &AnalysisStore{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "analysis_store"),
	}
}

// PublishAnalysis stores result and queues its ANALYSIS_COMPLETED event in
// the same transaction.
func (s *AnalysisStore) PublishAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	id := uuid.New()

	event, err := newAnalysisEvent(id, result)
	if err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = s.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertAnalysis(ctx, tx, id, result, body); err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}

	s.logger.Debug("analysis stored", "analysis_id", id, "platform", result.SourcePlatform)
	return nil
}

func insertAnalysis(ctx context.Context, tx pgx.Tx, id uuid.UUID, result *models.AnalysisResult, body []byte) error {
	var price *float64
	if result.Product != nil {
		price = result.Product.CurrentPrice
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO analysis_run (
			id, source_url, resolved_url, platform, product_name,
			current_price, recommendation, result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, result.SourceURL, result.ResolvedURL, string(result.SourcePlatform), result.ProductName,
		price, string(recommendationOf(result)), body, result.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

func newAnalysisEvent(id uuid.UUID, result *models.AnalysisResult) (*OutboxEvent, error) {
	payload := AnalysisCompleted{
		AnalysisID:     id,
		SourceURL:      result.SourceURL,
		ResolvedURL:    result.ResolvedURL,
		Platform:       result.SourcePlatform,
		ProductName:    result.ProductName,
		Recommendation: recommendationOf(result),
		PlatformsFound: result.PlatformsFound,
		AnalyzedAt:     result.AnalyzedAt.Format(time.RFC3339),
	}
	if result.Product != nil {
		payload.CurrentPrice = result.Product.CurrentPrice
	}
	if result.Comparison != nil {
		payload.CheapestPrice = result.Comparison.CheapestPrice
		payload.CheapestPlatform = result.Comparison.CheapestPlatform
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateAnalysis,
		AggregateID:   id.String(),
		EventType:     EventAnalysisCompleted,
		Payload:       raw,
	}, nil
}

func recommendationOf(result *models.AnalysisResult) models.Recommendation {
	if result.Prediction == nil {
		return models.RecommendationPriceUnavailable
	}
	return result.Prediction.Recommendation
}
