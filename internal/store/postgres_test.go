package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  []string
	args [][]any
	err  error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

type row struct {
	vals []int64
	err  error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*int64)) = r.vals[i]
	}
	return nil
}

type fakeQuerier struct {
	row  row
	args []any
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.args = args
	return q.row
}

func TestMigrate(t *testing.T) {
	rec := &recordingExecer{}
	require.NoError(t, Migrate(context.Background(), rec))
	require.Len(t, rec.sql, 1)
	for _, table := range []string{"did_claimed_events", "transaction_digests", "watermarks"} {
		assert.Contains(t, rec.sql[0], "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, rec.sql[0], "UNIQUE (transaction_digest, event_index)")
}

func TestMigrateError(t *testing.T) {
	rec := &recordingExecer{err: errors.New("permission denied")}
	err := Migrate(context.Background(), rec)
	assert.ErrorContains(t, err, "apply migrations/0001_init.sql")
}

func TestGetWatermark(t *testing.T) {
	ctx := context.Background()

	q := &fakeQuerier{row: row{vals: []int64{41, 1700}}}
	w, ok, err := GetWatermark(ctx, q, "p")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Watermark{CheckpointHiInclusive: 41, TimestampMsHiInclusive: 1700}, w)
	assert.Equal(t, []any{"p"}, q.args)

	_, ok, err = GetWatermark(ctx, &fakeQuerier{row: row{err: pgx.ErrNoRows}}, "p")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = GetWatermark(ctx, &fakeQuerier{row: row{err: errors.New("conn reset")}}, "p")
	assert.ErrorContains(t, err, "conn reset")
}

func TestSetWatermark(t *testing.T) {
	rec := &recordingExecer{}
	require.NoError(t, SetWatermark(context.Background(), rec, "p", Watermark{CheckpointHiInclusive: 9, TimestampMsHiInclusive: 99}))
	assert.True(t, strings.Contains(rec.sql[0], "WHERE watermarks.checkpoint_hi_inclusive < EXCLUDED.checkpoint_hi_inclusive"))
	assert.Equal(t, []any{"p", int64(9), int64(99)}, rec.args[0])
}

// TestPostgresRoundTrip runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))

	name := "store_test_" + t.Name()
	_, err = pool.Exec(ctx, `DELETE FROM watermarks WHERE pipeline = $1`, name)
	require.NoError(t, err)

	require.NoError(t, SetWatermark(ctx, pool, name, Watermark{CheckpointHiInclusive: 5, TimestampMsHiInclusive: 50}))
	require.NoError(t, SetWatermark(ctx, pool, name, Watermark{CheckpointHiInclusive: 3, TimestampMsHiInclusive: 30}))
	w, ok, err := GetWatermark(ctx, pool, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), w.CheckpointHiInclusive)
}
