package layer

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

var tractColumns = []string{"GEOID", "du_est_final_sum", "unit_val_mean", "designation", "geometry"}

func TestPostGIS_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "analytics"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "analytics"."tract"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "analytics"."tract" \("GEOID" bigint, "du_est_final_sum" bigint, "unit_val_mean" double precision, "designation" text, "geometry" geometry\(MultiPolygon, 4269\)\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"analytics", "tract"}, tractColumns).WillReturnResult(2)
	mock.ExpectCommit()

	sink, err := NewPostGIS(mock, PostGISOptions{Schema: "analytics"})
	require.NoError(t, err)
	require.NoError(t, sink.WriteLayer(context.Background(), tractLayer(t)))
	require.NoError(t, sink.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "public"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."tract" .*PRIMARY KEY \("GEOID"\)`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_public_tract"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_public_tract"}, tractColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("GEOID"\) DO UPDATE`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	sink, err := NewPostGIS(mock, PostGISOptions{Mode: ModeUpsert})
	require.NoError(t, err)
	require.NoError(t, sink.WriteLayer(context.Background(), tractLayer(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "tract"}, tractColumns).WillReturnError(errors.New("geometry SRID mismatch"))
	mock.ExpectRollback()

	sink, err := NewPostGIS(mock, PostGISOptions{})
	require.NoError(t, err)
	err = sink.WriteLayer(context.Background(), tractLayer(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgis: layer tract")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Validation(t *testing.T) {
	_, err := NewPostGIS(nil, PostGISOptions{Mode: "append"})
	assert.ErrorContains(t, err, "unknown mode")

	sink, err := NewPostGIS(nil, PostGISOptions{Mode: ModeUpsert})
	require.NoError(t, err)
	l := tractLayer(t)
	l.Key = ""
	assert.ErrorContains(t, sink.WriteLayer(context.Background(), l), "upsert needs a key column")
}

func TestCopyRows(t *testing.T) {
	l := tractLayer(t)
	rows, err := copyRows(l, InferSchema(l.Table, l.Geometry))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []any{int64(37063000200), nil, 98000.0, nil}, rows[1][:4])
	g, err := ewkb.Unmarshal(rows[0][4].([]byte))
	require.NoError(t, err)
	assert.Equal(t, 4269, g.SRID())
	assert.Equal(t, square(0, 0).FlatCoords(), g.FlatCoords())
}
