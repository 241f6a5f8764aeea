package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/vpload/internal/catalog"
	"github.com/bowerhall/vpload/internal/delegate"
	"github.com/bowerhall/vpload/internal/partition"
	"github.com/bowerhall/vpload/internal/stats"
)

const knowsLikes = "A\tknows\tB\nA\tknows\tC\nB\tlikes\tD\n"

func setup(t *testing.T, content string) (*catalog.Warehouse, string) {
	t.Helper()

	w, err := catalog.Open(filepath.Join(t.TempDir(), "warehouse"))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	input := filepath.Join(t.TempDir(), "triples.tsv")
	require.NoError(t, os.WriteFile(input, []byte(content), 0644))

	return w, input
}

func rows(t *testing.T, w *catalog.Warehouse, table string) [][2]string {
	t.Helper()

	var out [][2]string
	err := w.ScanPartition(context.Background(), table, func(s, o string) error {
		out = append(out, [2]string{s, o})
		return nil
	})
	require.NoError(t, err)

	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
	errs     map[string]error
	counts   map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{finished: map[string]string{}, errs: map[string]error{}, counts: map[string]int{}}
}

func (f *fakeLedger) Start(id, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeLedger) Finish(id, state string, predicates int, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = state
	f.errs[id] = runErr
	f.counts[id] = predicates
	return nil
}

type fakeUploader struct {
	bucket, key string
	data        []byte
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, bucket, name string, data []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.bucket, f.key, f.data = bucket, name, data
	return nil
}

type fakeRunner struct {
	result *delegate.Result
	got    delegate.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd delegate.Command) (*delegate.Result, error) {
	f.got = cmd
	return f.result, nil
}

type fakeProperty struct {
	input, database string
	err             error
}

func (f *fakeProperty) Run(_ context.Context, input, database string) error {
	f.input, f.database = input, database
	return f.err
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	w, input := setup(t, knowsLikes)
	statsPath := filepath.Join(t.TempDir(), "out", "graph.stats")
	led := newFakeLedger()

	var events []Event
	o := New(w, Options{
		Input:       input,
		Database:    "lubm",
		StatsPath:   statsPath,
		Parallelism: 2,
		Ledger:      led,
		Sink:        func(e Event) { events = append(events, e) },
	})

	require.NoError(t, o.Run(ctx))
	assert.Equal(t, StateDone, o.State())

	tables, err := w.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"VP_knows", "VP_likes"}, tables)

	assert.ElementsMatch(t, [][2]string{{"A", "B"}, {"A", "C"}}, rows(t, w, "VP_knows"))
	assert.ElementsMatch(t, [][2]string{{"B", "D"}}, rows(t, w, "VP_likes"))

	idx, err := stats.ReadFile(statsPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"knows", "likes"}, idx.Names())
	assert.Equal(t, int32(2), idx.TableSize("knows"))
	assert.Equal(t, int32(1), idx.DistinctSubjects("knows"))
	assert.Equal(t, int32(1), idx.TableSize("likes"))
	assert.Equal(t, int32(1), idx.DistinctSubjects("likes"))
	assert.Nil(t, idx.Graph().Name)
	assert.Nil(t, idx.Graph().Size)

	var stages []State
	progress := 0
	for _, e := range events {
		if e.Stage == StatePartitioningComplete && e.Total == 2 && e.Completed <= 2 {
			progress++
		}
		if len(stages) == 0 || stages[len(stages)-1] != e.Stage {
			stages = append(stages, e.Stage)
		}
	}
	assert.Equal(t, []State{
		StateTripleTableRegistered,
		StatePredicatesDiscovered,
		StatePartitioningComplete,
		StateStatsEmitted,
		StateDone,
	}, stages)
	assert.GreaterOrEqual(t, progress, 2)

	require.Equal(t, []string{o.ID()}, led.started)
	assert.Equal(t, "Done", led.finished[o.ID()])
	assert.Equal(t, 2, led.counts[o.ID()])
	assert.NoError(t, led.errs[o.ID()])
}

func TestRunWithoutStats(t *testing.T) {
	w, input := setup(t, knowsLikes)
	up := &fakeUploader{}

	o := New(w, Options{Input: input, Database: "lubm", Uploader: up})
	require.NoError(t, o.Run(context.Background()))

	assert.Nil(t, up.data)
	assert.Equal(t, StateDone, o.State())
}

func TestRunMissingInput(t *testing.T) {
	ctx := context.Background()
	w, _ := setup(t, knowsLikes)
	led := newFakeLedger()

	o := New(w, Options{Input: filepath.Join(t.TempDir(), "nope.tsv"), Database: "lubm", Ledger: led})

	err := o.Run(ctx)
	require.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Equal(t, StateInit, o.State())

	tables, err := w.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	assert.Equal(t, "Init", led.finished[o.ID()])
	assert.ErrorIs(t, led.errs[o.ID()], ErrCatalogUnavailable)
}

func TestRunStatsIOError(t *testing.T) {
	ctx := context.Background()
	w, input := setup(t, knowsLikes)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	statsPath := filepath.Join(blocker, "graph.stats")

	o := New(w, Options{Input: input, Database: "lubm", StatsPath: statsPath})

	err := o.Run(ctx)
	var ioErr *StatsIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, statsPath, ioErr.Location)
	assert.Equal(t, StatePartitioningComplete, o.State())

	// partitions are not rolled back
	tables, err := w.Partitions(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

func TestRunUploadsObjectStats(t *testing.T) {
	w, input := setup(t, knowsLikes)
	up := &fakeUploader{}

	o := New(w, Options{Input: input, Database: "lubm", StatsPath: "s3://artifacts/lubm/graph.stats", Uploader: up})
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, "artifacts", up.bucket)
	assert.Equal(t, "lubm/graph.stats", up.key)

	g, err := stats.Unmarshal(up.data)
	require.NoError(t, err)
	assert.Len(t, g.Tables, 2)
}

func TestRunObjectStatsFailures(t *testing.T) {
	tests := []struct {
		name     string
		location string
		uploader Uploader
	}{
		{"no storage", "s3://artifacts/graph.stats", nil},
		{"no key", "s3://artifacts", &fakeUploader{}},
		{"upload fails", "s3://artifacts/graph.stats", &fakeUploader{err: errors.New("access denied")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, input := setup(t, knowsLikes)

			o := New(w, Options{Input: input, Database: "lubm", StatsPath: tt.location, Uploader: tt.uploader})

			var ioErr *StatsIOError
			assert.ErrorAs(t, o.Run(context.Background()), &ioErr)
		})
	}
}

func TestRunDelegatesPropertyTable(t *testing.T) {
	w, input := setup(t, knowsLikes)
	prop := &fakeProperty{}

	o := New(w, Options{Input: input, Database: "lubm", PropertyTable: prop})
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, input, prop.input)
	assert.Equal(t, "lubm", prop.database)
	assert.Equal(t, StateDone, o.State())
}

func TestRunDelegatedJobFailure(t *testing.T) {
	w, input := setup(t, knowsLikes)

	var stdout bytes.Buffer
	runner := &fakeRunner{result: &delegate.Result{Stdout: "loading\n", Stderr: "Exception in thread main"}}
	job := &delegate.PropertyTableJob{Runner: runner, Jar: "pt.jar", Stdout: &stdout}

	o := New(w, Options{Input: input, Database: "lubm", PropertyTable: job})

	err := o.Run(context.Background())
	var jobErr *delegate.JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "Exception in thread main", jobErr.Stderr)
	assert.Equal(t, "loading\n", stdout.String())
	assert.Equal(t, []string{"-jar", "pt.jar", input, "lubm"}, runner.got.Args)
	assert.Equal(t, StatePartitioningComplete, o.State())
}

func TestRunIsNotRestartable(t *testing.T) {
	w, input := setup(t, knowsLikes)

	o := New(w, Options{Input: input, Database: "lubm"})
	require.NoError(t, o.Run(context.Background()))
	assert.ErrorIs(t, o.Run(context.Background()), ErrNotRestartable)

	failed := New(w, Options{Input: filepath.Join(t.TempDir(), "nope"), Database: "other"})
	require.Error(t, failed.Run(context.Background()))
	assert.ErrorIs(t, failed.Run(context.Background()), ErrNotRestartable)
}

func TestRerunExistingPolicy(t *testing.T) {
	ctx := context.Background()
	w, input := setup(t, knowsLikes)

	require.NoError(t, New(w, Options{Input: input, Database: "lubm"}).Run(ctx))

	err := New(w, Options{Input: input, Database: "lubm"}).Run(ctx)
	var merr *partition.MaterializationError
	require.ErrorAs(t, err, &merr)
	assert.ErrorIs(t, err, catalog.ErrTableExists)

	o := New(w, Options{Input: input, Database: "lubm", Policy: catalog.ExistingOverwrite})
	require.NoError(t, o.Run(ctx))
	assert.ElementsMatch(t, [][2]string{{"A", "B"}, {"A", "C"}}, rows(t, w, "VP_knows"))
}

func TestRerunOverwriteReadsCurrentInput(t *testing.T) {
	ctx := context.Background()
	w, input := setup(t, knowsLikes)

	require.NoError(t, New(w, Options{Input: input, Database: "lubm"}).Run(ctx))

	require.NoError(t, os.WriteFile(input, []byte("Z\tknows\tY\n"), 0644))

	o := New(w, Options{Input: input, Database: "lubm", Policy: catalog.ExistingOverwrite})
	require.NoError(t, o.Run(ctx))

	assert.Equal(t, [][2]string{{"Z", "Y"}}, rows(t, w, "VP_knows"))

	tables, err := w.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"VP_knows"}, tables)
}

func TestRerunWithOtherInputNeedsOverwrite(t *testing.T) {
	ctx := context.Background()
	w, input := setup(t, knowsLikes)

	require.NoError(t, New(w, Options{Input: input, Database: "lubm"}).Run(ctx))

	other := filepath.Join(t.TempDir(), "other.tsv")
	require.NoError(t, os.WriteFile(other, []byte("Z\tknows\tY\n"), 0644))

	o := New(w, Options{Input: other, Database: "lubm"})
	require.ErrorIs(t, o.Run(ctx), catalog.ErrSourceChanged)
	assert.Equal(t, StateInit, o.State())
	assert.ElementsMatch(t, [][2]string{{"A", "B"}, {"A", "C"}}, rows(t, w, "VP_knows"))

	require.NoError(t, New(w, Options{Input: other, Database: "lubm", Policy: catalog.ExistingOverwrite}).Run(ctx))
	assert.Equal(t, [][2]string{{"Z", "Y"}}, rows(t, w, "VP_knows"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PropertyTableDelegated", StatePropertyTableDelegated.String())
	assert.Equal(t, "State(42)", State(42).String())
}
