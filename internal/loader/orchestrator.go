package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bowerhall/vpload/internal/catalog"
	"github.com/bowerhall/vpload/internal/logger"
	"github.com/bowerhall/vpload/internal/partition"
	"github.com/bowerhall/vpload/internal/stats"
	"github.com/bowerhall/vpload/internal/triples"
)

// Ledger records the outcome of every run, e.g. *ledger.Store.
type Ledger interface {
	Start(id, input, database, statsPath string) error
	Finish(id, state string, predicates int, runErr error) error
}

// PropertyTableLoader is the optional out-of-process follow-up load.
type PropertyTableLoader interface {
	Run(ctx context.Context, input, database string) error
}

type Options struct {
	Input    string
	Database string

	// StatsPath enables statistics when set.
	StatsPath string

	Policy      catalog.ExistingPolicy
	Parallelism int

	Source        triples.Source
	Uploader      Uploader
	PropertyTable PropertyTableLoader
	Ledger        Ledger
	Sink          Sink
}

// Orchestrator drives one load from Init to Done. It runs once; a failed
// load is retried with a new Orchestrator.
type Orchestrator struct {
	catalog catalog.Catalog
	opts    Options
	id      string
	log     *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
}

func New(c catalog.Catalog, opts Options) *Orchestrator {
	if opts.Source == nil {
		opts.Source = triples.FileSource{}
	}

	id := uuid.NewString()

	return &Orchestrator{
		catalog: c,
		opts:    opts,
		id:      id,
		log:     logger.With("run", id, "database", opts.Database),
	}
}

// ID identifies the run in logs and in the ledger.
func (o *Orchestrator) ID() string {
	return o.id
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) advance(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	o.log.Debug("state changed", "state", s)
	o.emit(Event{Stage: s, Completed: 1, Total: 1})
}

func (o *Orchestrator) emit(e Event) {
	if o.opts.Sink != nil {
		o.opts.Sink(e)
	}
}

// Run performs the whole load.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrNotRestartable
	}
	o.started = true
	o.mu.Unlock()

	start := time.Now()
	o.log.Info("load started", "input", o.opts.Input, "stats", o.opts.StatsPath != "")

	if o.opts.Ledger != nil {
		if err := o.opts.Ledger.Start(o.id, o.opts.Input, o.opts.Database, o.opts.StatsPath); err != nil {
			o.log.Warn("failed to record run start", "error", err)
		}
	}

	predicates, err := o.run(ctx)

	if o.opts.Ledger != nil {
		if lerr := o.opts.Ledger.Finish(o.id, o.State().String(), predicates, err); lerr != nil {
			o.log.Warn("failed to record run result", "error", lerr)
		}
	}

	if err != nil {
		o.log.Error("load failed", "state", o.State(), "error", err)
		return err
	}

	o.log.Info("load finished", "predicates", predicates, "duration", time.Since(start))
	return nil
}

func (o *Orchestrator) run(ctx context.Context) (int, error) {
	if err := o.registerTriples(ctx); err != nil {
		return 0, err
	}
	o.advance(StateTripleTableRegistered)

	predicates, err := partition.NewPlanner(o.catalog).Discover(ctx)
	if err != nil {
		return 0, err
	}
	o.advance(StatePredicatesDiscovered)

	withStats := o.opts.StatsPath != ""

	m := partition.NewMaterializer(o.catalog, partition.Options{
		Policy:      o.opts.Policy,
		Parallelism: o.opts.Parallelism,
		Stats:       withStats,
		Progress: func(completed, total int) {
			o.emit(Event{Stage: StatePartitioningComplete, Completed: completed, Total: total})
		},
	})

	results, err := m.MaterializeAll(ctx, predicates)
	if err != nil {
		return len(predicates), err
	}
	o.advance(StatePartitioningComplete)

	if withStats {
		if err := o.emitStats(ctx, results); err != nil {
			return len(predicates), err
		}
		o.advance(StateStatsEmitted)
	}

	if o.opts.PropertyTable != nil {
		if err := o.opts.PropertyTable.Run(ctx, o.opts.Input, o.opts.Database); err != nil {
			return len(predicates), err
		}
		o.advance(StatePropertyTableDelegated)
	}

	o.advance(StateDone)
	return len(predicates), nil
}

func (o *Orchestrator) registerTriples(ctx context.Context) error {
	if err := o.catalog.EnsureNamespace(ctx, o.opts.Database); err != nil {
		return fmt.Errorf("create database %s: %w", o.opts.Database, err)
	}

	if err := o.catalog.UseNamespace(ctx, o.opts.Database); err != nil {
		return fmt.Errorf("use database %s: %w", o.opts.Database, err)
	}

	created, err := o.catalog.RegisterTriples(ctx, o.opts.Input, o.opts.Source, o.opts.Policy)
	if err != nil {
		return err
	}

	if !created {
		o.log.Info("keeping existing triple table")
	}

	return nil
}

func (o *Orchestrator) emitStats(ctx context.Context, results []partition.Result) error {
	var acc stats.Accumulator
	for _, r := range results {
		if r.Stat != nil {
			acc = acc.Add(*r.Stat)
		}
	}

	data, err := stats.Marshal(acc.Graph())
	if err != nil {
		return &StatsIOError{Location: o.opts.StatsPath, Err: err}
	}

	if err := writeStats(ctx, o.opts.Uploader, o.opts.StatsPath, data); err != nil {
		return err
	}

	o.log.Info("statistics written", "location", o.opts.StatsPath, "tables", acc.Len(), "bytes", len(data))
	return nil
}
