package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/vpload/internal/catalog"
	"github.com/bowerhall/vpload/internal/logger"
	"github.com/bowerhall/vpload/internal/names"
	"github.com/bowerhall/vpload/internal/stats"
)

// ErrNameCollision is returned when two predicates sanitize to one table name.
var ErrNameCollision = errors.New("table name collision")

// MaterializationError reports the predicate whose partition could not be built.
type MaterializationError struct {
	Predicate string
	Table     string
	Err       error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize %s (predicate %q): %v", e.Table, e.Predicate, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Store is the catalog surface partitions are written and measured through.
type Store interface {
	CreatePartition(ctx context.Context, table, predicate string, policy catalog.ExistingPolicy) error
	stats.Counter
}

// Result describes one materialized partition. Stat is nil unless
// statistics were requested.
type Result struct {
	Predicate string
	Table     string
	Stat      *stats.Table
}

type Options struct {
	Policy      catalog.ExistingPolicy
	Parallelism int
	Stats       bool

	// Progress is called after every finished table. Calls are serialized.
	Progress func(completed, total int)
}

// Materializer builds one vertical partition table per predicate.
type Materializer struct {
	store Store
	opts  Options
}

func NewMaterializer(store Store, opts Options) *Materializer {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	return &Materializer{store: store, opts: opts}
}

// Materialize creates the partition of a single predicate and, when enabled,
// collects its statistics.
func (m *Materializer) Materialize(ctx context.Context, predicate string) (Result, error) {
	table := names.TableName(predicate)

	if err := m.store.CreatePartition(ctx, table, predicate, m.opts.Policy); err != nil {
		return Result{}, &MaterializationError{Predicate: predicate, Table: table, Err: err}
	}

	r := Result{Predicate: predicate, Table: table}
	if !m.opts.Stats {
		return r, nil
	}

	st, err := stats.Collect(ctx, m.store, predicate, table)
	if err != nil {
		return Result{}, &MaterializationError{Predicate: predicate, Table: table, Err: fmt.Errorf("collect statistics: %w", err)}
	}
	r.Stat = &st

	return r, nil
}

// MaterializeAll builds every partition on a bounded worker pool. Results
// keep the order of predicates. The first failure cancels the rest of the
// batch and is returned.
func (m *Materializer) MaterializeAll(ctx context.Context, predicates []string) ([]Result, error) {
	if err := checkCollisions(predicates); err != nil {
		return nil, err
	}

	total := len(predicates)
	results := make([]Result, total)

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Parallelism)

	for i, p := range predicates {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			r, err := m.Materialize(gctx, p)
			if err != nil {
				return err
			}
			results[i] = r

			mu.Lock()
			completed++
			logger.Debug("partition created", "table", r.Table, "completed", completed, "total", total)
			if m.opts.Progress != nil {
				m.opts.Progress(completed, total)
			}
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// the parent context may have been cancelled before any worker noticed
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func checkCollisions(predicates []string) error {
	seen := make(map[string]string, len(predicates))

	// catalog identifiers are case insensitive
	for _, p := range predicates {
		table := names.TableName(p)
		key := strings.ToLower(table)
		if other, ok := seen[key]; ok {
			return &MaterializationError{
				Predicate: p,
				Table:     table,
				Err:       fmt.Errorf("%w with predicate %q", ErrNameCollision, other),
			}
		}
		seen[key] = p
	}

	return nil
}
