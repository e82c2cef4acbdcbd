package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/maltedev/product-sourcing/internal/events"
	"github.com/maltedev/product-sourcing/internal/jobs"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/storage"
)

// RecordFileSink writes each batch's records to <dir>/records_<batch>.json.
func RecordFileSink(dir string) jobs.Sink {
	return jobs.SinkFunc(func(ctx context.Context, batchID string, result *models.BatchResult) error {
		path := filepath.Join(dir, fmt.Sprintf("records_%s.json", batchID))
		return storage.WriteRecords(path, result.Records())
	})
}

// ListingStatusSink marks collected listings completed or failed.
func ListingStatusSink(listings *storage.ListingStorage) jobs.Sink {
	return jobs.SinkFunc(func(ctx context.Context, batchID string, result *models.BatchResult) error {
		return listings.ApplyResults(result)
	})
}

// RecordPublisher stores records and queues their stream event.
type RecordPublisher interface {
	PublishRecordsAssembled(ctx context.Context, batchID string, result *models.BatchResult) error
}

func PublisherSink(p RecordPublisher) jobs.Sink {
	return jobs.SinkFunc(p.PublishRecordsAssembled)
}

// ExportHandler writes records read back from the stream to
// <dir>/records_<batch>.json.
func ExportHandler(dir string) events.RecordHandler {
	return func(ctx context.Context, payload *events.RecordsAssembledPayload) error {
		path := filepath.Join(dir, fmt.Sprintf("records_%s.json", payload.BatchID))
		return storage.WriteRecords(path, payload.Records)
	}
}
