package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "tract", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"tract"}, []string{"a", "b"}).WillReturnResult(3)

	n, err := CopyFrom(context.Background(), mock, "tract", []string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}, {3, "z"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"analytics", "tract"}, []string{"a"}).WillReturnError(errors.New("permission denied"))

	_, err = CopyFromSchema(context.Background(), mock, "analytics", "tract", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO analytics.tract")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ident := pgx.Identifier{"analytics", "bg"}
	mock.ExpectCopyFrom(ident, []string{"id"}).WillReturnResult(2)
	mock.ExpectCopyFrom(ident, []string{"id"}).WillReturnResult(2)
	mock.ExpectCopyFrom(ident, []string{"id"}).WillReturnResult(1)

	n, err := CopyBatches(context.Background(), mock, "analytics", "bg", []string{"id"}, [][]any{{1}, {2}, {3}, {4}, {5}}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_PartialFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ident := pgx.Identifier{"analytics", "bg"}
	mock.ExpectCopyFrom(ident, []string{"id"}).WillReturnResult(2)
	mock.ExpectCopyFrom(ident, []string{"id"}).WillReturnError(errors.New("disk full"))

	n, err := CopyBatches(context.Background(), mock, "analytics", "bg", []string{"id"}, [][]any{{1}, {2}, {3}}, 2)
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, err.Error(), "batch 2-3")
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_analytics_tract"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_analytics_tract"}, []string{"GEOID", "n"}).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("GEOID"\) DO UPDATE SET "n" = EXCLUDED."n"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "analytics.tract",
		Columns:      []string{"GEOID", "n"},
		ConflictKeys: []string{"GEOID"},
	}, [][]any{{int64(1), 3}, {int64(2), 4}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, SanitizeTable("simple"))
	assert.Equal(t, `"analytics"."tract"`, SanitizeTable("analytics.tract"))
	assert.Equal(t, `"id", "name"`, QuoteAndJoin([]string{"id", "name"}))
}
