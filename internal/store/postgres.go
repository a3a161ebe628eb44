// Package store owns the Postgres schema and the small query surface the
// pipelines share: the connection pool, migrations and watermarks.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier reads single rows; satisfied by the same types as Execer.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		ddl, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Watermark is the highest checkpoint a pipeline has fully committed.
type Watermark struct {
	CheckpointHiInclusive  int64
	TimestampMsHiInclusive int64
}

// GetWatermark returns ok=false when the pipeline has never committed.
func GetWatermark(ctx context.Context, db Querier, pipeline string) (Watermark, bool, error) {
	var w Watermark
	err := db.QueryRow(ctx,
		`SELECT checkpoint_hi_inclusive, timestamp_ms_hi_inclusive FROM watermarks WHERE pipeline = $1`,
		pipeline,
	).Scan(&w.CheckpointHiInclusive, &w.TimestampMsHiInclusive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Watermark{}, false, nil
	}
	if err != nil {
		return Watermark{}, false, fmt.Errorf("read watermark %s: %w", pipeline, err)
	}
	return w, true, nil
}

// SetWatermark advances the pipeline's watermark. It never moves backwards,
// so re-committing an already covered range leaves it untouched.
func SetWatermark(ctx context.Context, db Execer, pipeline string, w Watermark) error {
	_, err := db.Exec(ctx,
		`INSERT INTO watermarks (pipeline, checkpoint_hi_inclusive, timestamp_ms_hi_inclusive)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (pipeline) DO UPDATE SET
			checkpoint_hi_inclusive = EXCLUDED.checkpoint_hi_inclusive,
			timestamp_ms_hi_inclusive = EXCLUDED.timestamp_ms_hi_inclusive,
			updated_at = NOW()
		 WHERE watermarks.checkpoint_hi_inclusive < EXCLUDED.checkpoint_hi_inclusive`,
		pipeline, w.CheckpointHiInclusive, w.TimestampMsHiInclusive,
	)
	return err
}
