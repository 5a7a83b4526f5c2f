// Package db provides PostgreSQL helpers for bulk COPY and upsert of exported
// layers.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent per COPY when batching.
const DefaultBatchSize = 50000

// CopyFrom bulk-inserts rows into a table using the COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	return copyRows(ctx, pool, pgx.Identifier{table}, columns, rows)
}

// CopyFromSchema bulk-inserts rows into a schema-qualified table.
func CopyFromSchema(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any) (int64, error) {
	return copyRows(ctx, pool, pgx.Identifier{schema, table}, columns, rows)
}

// CopyBatches copies rows into schema.table in chunks of batchSize
// (0 = DefaultBatchSize) and returns the running total even when a later batch
// fails.
func CopyBatches(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", schema+"."+table),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n, err := CopyFromSchema(ctx, pool, schema, table, columns, rows[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "db: batch %d-%d", start, end)
		}
		total += n
		log.Debug("batch copied", zap.Int("batch_start", start), zap.Int64("batch_rows", n))
	}
	return total, nil
}

func copyRows(ctx context.Context, pool Pool, ident pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", qualified(ident))
	}
	return n, nil
}

// qualified renders an identifier without quotes for error messages.
func qualified(ident pgx.Identifier) string {
	out := ""
	for i, part := range ident {
		if i > 0 {
			out += "."
		}
		out += part
	}
	return out
}
