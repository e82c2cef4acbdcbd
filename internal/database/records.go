package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/product-sourcing/internal/models"
)

const upsertRecord = `
	INSERT INTO catalog_record (
		batch_id, source_url, vendor_key, product_code, option_name,
		name, price, stock, record
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (source_url, option_name) DO UPDATE SET
		batch_id = EXCLUDED.batch_id,
		product_code = EXCLUDED.product_code,
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		stock = EXCLUDED.stock,
		record = EXCLUDED.record,
		updated_at = now()`

// RecordRepository persists assembled output records. A re-run of the same
// source URL replaces its rows instead of duplicating them.
type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// InsertWithTx upserts records within tx using a single round trip.
func (r *RecordRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, batchID string, records []models.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		batch.Queue(upsertRecord,
			batchID, rec.SourceURL, rec.VendorKey, rec.ProductCode, rec.OptionName,
			rec.Name, rec.Price, rec.Stock, payload,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close record batch: %w", err)
	}
	return nil
}

// CountByBatch returns how many stored records the batch produced.
func (r *RecordRepository) CountByBatch(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM catalog_record WHERE batch_id = $1", batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
