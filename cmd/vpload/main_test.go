package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/vpload/internal/stats"
)

func isolate(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "warehouse")
	t.Setenv("VPLOAD_WAREHOUSE", dir)
	for _, key := range []string{"VPLOAD_PARALLELISM", "VPLOAD_EXISTING", "VPLOAD_SCHEDULE", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY"} {
		t.Setenv(key, "")
	}

	return dir
}

func TestParseArgsInterleaved(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	stats := fs.String("stats", "", "")
	overwrite := fs.Bool("overwrite", false, "")

	positional, err := parseArgs(fs, []string{"--overwrite", "in.tsv", "--stats", "out.stats", "lubm"})
	require.NoError(t, err)

	assert.Equal(t, []string{"in.tsv", "lubm"}, positional)
	assert.Equal(t, "out.stats", *stats)
	assert.True(t, *overwrite)
}

func TestParseLoad(t *testing.T) {
	input, database, f, err := parseLoad("run", []string{"in.tsv", "lubm", "--parallelism", "3", "--property-table-jar", "pt.jar"}, false)
	require.NoError(t, err)

	assert.Equal(t, "in.tsv", input)
	assert.Equal(t, "lubm", database)
	assert.Equal(t, 3, f.parallelism)
	assert.Equal(t, "pt.jar", f.jar)

	_, _, _, err = parseLoad("run", []string{"in.tsv"}, false)
	assert.Error(t, err)

	_, _, _, err = parseLoad("run", []string{"in.tsv", "lubm", "--cron", "@daily"}, false)
	assert.Error(t, err, "cron is only a schedule flag")

	_, _, f, err = parseLoad("schedule", []string{"in.tsv", "lubm", "--cron", "@daily"}, true)
	require.NoError(t, err)
	assert.Equal(t, "@daily", f.cron)
}

func TestScheduleRequiresOverwrite(t *testing.T) {
	isolate(t)

	err := scheduleCommand(context.Background(), []string{"in.tsv", "lubm", "--cron", "@daily"})
	assert.ErrorContains(t, err, "--overwrite")

	err = scheduleCommand(context.Background(), []string{"in.tsv", "lubm", "--overwrite"})
	assert.ErrorContains(t, err, "--cron")
}

func TestRunThenInspect(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	input := filepath.Join(t.TempDir(), "triples.tsv")
	require.NoError(t, os.WriteFile(input, []byte("A\tknows\tB\nA\tknows\tC\nB\tlikes\tD\n"), 0644))
	statsPath := filepath.Join(t.TempDir(), "graph.stats")

	require.NoError(t, runCommand(ctx, []string{input, "lubm", "--stats", statsPath}))

	var out bytes.Buffer
	require.NoError(t, statsCommand(ctx, []string{statsPath}, &out))
	assert.Contains(t, out.String(), "2 tables, 3 triples")
	assert.Contains(t, out.String(), "knows")
	assert.Contains(t, out.String(), "2.00")

	// a second run without --overwrite fails and is recorded as well
	require.Error(t, runCommand(ctx, []string{input, "lubm"}))

	out.Reset()
	require.NoError(t, runsCommand(ctx, []string{"--limit", "5"}, &out))
	assert.Contains(t, out.String(), "Done")
	assert.Contains(t, out.String(), "PredicatesDiscovered")
	assert.Contains(t, out.String(), "table already exists")
}

func TestUnreachableStorageFailsFast(t *testing.T) {
	isolate(t)
	t.Setenv("MINIO_ENDPOINT", "127.0.0.1:1")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := runsCommand(ctx, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "not reachable")
}

func TestPrintStatsUnknownFanout(t *testing.T) {
	idx := stats.NewIndex(&stats.Graph{Tables: []stats.Table{{Name: "bare"}}})

	var out bytes.Buffer
	require.NoError(t, printStats(&out, idx))
	assert.Contains(t, out.String(), "bare")
	assert.Contains(t, out.String(), "-")
}
