// Package events stores assembled records and their stream notification in
// one transaction.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/product-sourcing/internal/database"
	"github.com/maltedev/product-sourcing/internal/models"
)

type EventType string

const (
	EventTypeRecordsAssembled EventType = "RECORDS_ASSEMBLED"
)

// RecordsAssembledPayload is the message consumers read from the record stream.
type RecordsAssembledPayload struct {
	EventID   string                `json:"event_id"`
	EventType string                `json:"event_type"`
	Timestamp time.Time             `json:"timestamp"`
	BatchID   string                `json:"batch_id"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Records   []models.OutputRecord `json:"records"`
	Source    string                `json:"source"`
}

type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type RecordWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, batchID string, records []models.OutputRecord) error
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

type Publisher struct {
	db      Transactor
	records RecordWriter
	outbox  OutboxWriter
	stream  string
	logger  *slog.Logger
}

func NewPublisher(db Transactor, records RecordWriter, outbox OutboxWriter, stream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:      db,
		records: records,
		outbox:  outbox,
		stream:  stream,
		logger:  logger.With("component", "event_publisher"),
	}
}

// PublishRecordsAssembled writes the batch's records and a RECORDS_ASSEMBLED
// outbox event atomically. A batch without records publishes nothing.
func (p *Publisher) PublishRecordsAssembled(ctx context.Context, batchID string, result *models.BatchResult) error {
	records := result.Records()
	if len(records) == 0 {
		p.logger.Info("no records to publish", "batch_id", batchID)
		return nil
	}

	payload := &RecordsAssembledPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeRecordsAssembled),
		Timestamp: time.Now(),
		BatchID:   batchID,
		Succeeded: result.Succeeded(),
		Failed:    len(result.Items) - result.Succeeded(),
		Records:   records,
		Source:    "sourcing-pipeline",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "batch",
		AggregateID:   batchID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.records.InsertWithTx(ctx, tx, batchID, records); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("records published to outbox",
		"batch_id", batchID,
		"event_id", payload.EventID,
		"records", len(records),
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
