// Package pipeline drives handlers over a checkpoint stream.
//
// Each pipeline is sequential: checkpoints are processed in strictly
// increasing order, grouped into batches, and every batch is committed in
// one transaction together with the pipeline's watermark. A crash between
// batches therefore replays from the last committed checkpoint, and
// handlers make that replay harmless by committing idempotently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/SuiVerify/suiverify-indexer/internal/checkpoint"
	"github.com/SuiVerify/suiverify-indexer/internal/metrics"
	"github.com/SuiVerify/suiverify-indexer/internal/store"
)

// Handler extracts values of type V from checkpoints and writes them.
type Handler[V any] interface {
	// Name identifies the pipeline and its watermark.
	Name() string
	// Process must be a pure function of the checkpoint.
	Process(ctx context.Context, cp *checkpoint.Checkpoint) ([]V, error)
	// Commit writes batch through conn and returns the number of new rows.
	// It must be idempotent: the same batch may be committed again after a retry.
	Commit(ctx context.Context, conn store.Execer, batch []V) (int64, error)
}

// Notifier is implemented by handlers that broadcast a batch once its
// transaction has committed. Notify must not block for long and has no
// way to fail the pipeline.
type Notifier[V any] interface {
	Notify(ctx context.Context, batch []V)
}

// DB is the storage a pipeline needs; *pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	store.Querier
}

// SourceFunc opens a checkpoint source positioned at from.
type SourceFunc func(from uint64) checkpoint.Source

// Config tunes batching and retries.
type Config struct {
	// FirstCheckpoint is where a pipeline without a watermark starts.
	FirstCheckpoint uint64
	// MaxBatchCheckpoints caps how many checkpoints share a transaction.
	MaxBatchCheckpoints int
	// BatchTimeout flushes a partial batch this long after its first checkpoint.
	BatchTimeout time.Duration
	// CommitRetries is the number of attempts per batch.
	CommitRetries int
	// RetryBackoff is the linear backoff step: attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBatchCheckpoints < 1 {
		c.MaxBatchCheckpoints = 1
	}
	if c.CommitRetries < 1 {
		c.CommitRetries = 1
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 500 * time.Millisecond
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// Sequential runs one Handler.
type Sequential[V any] struct {
	h         Handler[V]
	db        DB
	newSource SourceFunc
	cfg       Config
	log       *slog.Logger
}

func NewSequential[V any](h Handler[V], db DB, newSource SourceFunc, cfg Config, log *slog.Logger) *Sequential[V] {
	return &Sequential[V]{
		h:         h,
		db:        db,
		newSource: newSource,
		cfg:       cfg.withDefaults(),
		log:       log.With("pipeline", h.Name()),
	}
}

func (p *Sequential[V]) Name() string { return p.h.Name() }

type processed[V any] struct {
	seq    uint64
	tsMs   uint64
	values []V
}

type batch[V any] struct {
	lo, hi      uint64
	hiTsMs      uint64
	checkpoints int
	values      []V
}

func (b *batch[V]) add(c processed[V]) {
	if b.checkpoints == 0 {
		b.lo = c.seq
	}
	b.hi, b.hiTsMs = c.seq, c.tsMs
	b.checkpoints++
	b.values = append(b.values, c.values...)
}

// Run processes checkpoints until the source is exhausted, ctx is canceled
// or a batch fails every commit attempt.
func (p *Sequential[V]) Run(ctx context.Context) error {
	from, err := p.resumeFrom(ctx)
	if err != nil {
		return err
	}
	p.log.Info("starting pipeline", "from", from)
	src := p.newSource(from)

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan processed[V], p.cfg.MaxBatchCheckpoints)
	g.Go(func() error {
		defer close(ch)
		return p.produce(gctx, src, from, ch)
	})
	g.Go(func() error {
		return p.consume(gctx, ch)
	})
	return g.Wait()
}

func (p *Sequential[V]) resumeFrom(ctx context.Context) (uint64, error) {
	from := p.cfg.FirstCheckpoint
	wm, ok, err := store.GetWatermark(ctx, p.db, p.h.Name())
	if err != nil {
		return 0, err
	}
	if ok {
		metrics.Watermark.WithLabelValues(p.h.Name()).Set(float64(wm.CheckpointHiInclusive))
		if next := uint64(wm.CheckpointHiInclusive) + 1; next > from {
			from = next
		}
	}
	return from, nil
}

// produce reads and processes checkpoints in order. Redelivered or
// out-of-range checkpoints are dropped.
func (p *Sequential[V]) produce(ctx context.Context, src checkpoint.Source, from uint64, out chan<- processed[V]) error {
	var (
		last    uint64
		hasLast bool
	)
	for {
		cp, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			p.log.Info("checkpoint source exhausted")
			return nil
		}
		if err != nil {
			return err
		}
		seq := cp.SequenceNumber
		if seq < from || (hasLast && seq <= last) {
			p.log.Debug("skipping redelivered checkpoint", "checkpoint", seq)
			continue
		}
		if hasLast && seq > last+1 {
			p.log.Warn("checkpoint sequence gap", "after", last, "next", seq)
		}
		last, hasLast = seq, true

		values, err := p.h.Process(ctx, cp)
		if err != nil {
			return fmt.Errorf("process checkpoint %d: %w", seq, err)
		}
		metrics.CheckpointsProcessed.WithLabelValues(p.h.Name()).Inc()
		metrics.RecordsExtracted.WithLabelValues(p.h.Name()).Add(float64(len(values)))

		select {
		case out <- processed[V]{seq: seq, tsMs: cp.TimestampMs, values: values}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Sequential[V]) consume(ctx context.Context, in <-chan processed[V]) error {
	for {
		var b batch[V]
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				return nil
			}
			b.add(c)
		}

		timer := time.NewTimer(p.cfg.BatchTimeout)
		open := true
	collect:
		for b.checkpoints < p.cfg.MaxBatchCheckpoints {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				break collect
			case c, ok := <-in:
				if !ok {
					open = false
					break collect
				}
				b.add(c)
			}
		}
		timer.Stop()

		if err := p.flush(ctx, &b); err != nil {
			return err
		}
		if !open {
			return nil
		}
	}
}

// flush commits b with retries, then notifies.
func (p *Sequential[V]) flush(ctx context.Context, b *batch[V]) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.CommitRetries; attempt++ {
		start := time.Now()
		inserted, err := p.commitOnce(ctx, b)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.CommitTotal.WithLabelValues(p.h.Name(), status).Inc()
		metrics.CommitDuration.WithLabelValues(p.h.Name(), status).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.RowsInserted.WithLabelValues(p.h.Name()).Add(float64(inserted))
			metrics.Watermark.WithLabelValues(p.h.Name()).Set(float64(b.hi))
			p.log.Debug("committed batch", "from", b.lo, "to", b.hi, "values", len(b.values), "inserted", inserted)
			if n, ok := p.h.(Notifier[V]); ok {
				n.Notify(context.WithoutCancel(ctx), b.values)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn("commit failed", "from", b.lo, "to", b.hi, "attempt", attempt+1, "err", err)
		if attempt+1 == p.cfg.CommitRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * p.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("%s: commit checkpoints %d-%d: %w", p.h.Name(), b.lo, b.hi, lastErr)
}

// commitOnce writes the batch and the watermark in one transaction.
func (p *Sequential[V]) commitOnce(ctx context.Context, b *batch[V]) (int64, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	inserted, err := p.h.Commit(ctx, tx, b.values)
	if err != nil {
		return 0, err
	}
	wm := store.Watermark{CheckpointHiInclusive: int64(b.hi), TimestampMsHiInclusive: int64(b.hiTsMs)}
	if err := store.SetWatermark(ctx, tx, p.h.Name(), wm); err != nil {
		return 0, fmt.Errorf("set watermark: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Runner is a pipeline ready to run.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// RunAll runs pipelines concurrently. The first failure cancels the rest.
func RunAll(ctx context.Context, pipelines ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range pipelines {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("pipeline %s: %w", r.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
