package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bowerhall/vpload/internal/catalog"
	"github.com/bowerhall/vpload/internal/config"
	"github.com/bowerhall/vpload/internal/schedule"
	"github.com/bowerhall/vpload/internal/stats"
	"github.com/bowerhall/vpload/internal/triples"
)

type loadFlags struct {
	stats       string
	jar         string
	config      string
	overwrite   bool
	parallelism int
	cron        string
}

func (f *loadFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.stats, "stats", "", "write table statistics to this path or s3:// location")
	fs.StringVar(&f.jar, "property-table-jar", "", "run this property table loader jar after partitioning")
	fs.StringVar(&f.config, "config", "", "YAML config file")
	fs.BoolVar(&f.overwrite, "overwrite", false, "replace partition tables left by a previous run")
	fs.IntVar(&f.parallelism, "parallelism", 0, "number of partitions built concurrently")
}

// apply lets flags override the loaded config.
func (f *loadFlags) apply(cfg *config.Config) {
	if f.overwrite {
		cfg.Existing = catalog.ExistingOverwrite.String()
	}

	if f.parallelism > 0 {
		cfg.Parallelism = f.parallelism
	}

	if f.cron != "" {
		cfg.Schedule = f.cron
	}
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string

	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}

		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}

		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func parseLoad(name string, args []string, withCron bool) (input, database string, f *loadFlags, err error) {
	f = &loadFlags{}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f.register(fs)
	if withCron {
		fs.StringVar(&f.cron, "cron", "", "cron expression for reloads")
	}

	positional, err := parseArgs(fs, args)
	if err != nil {
		return "", "", nil, err
	}

	if len(positional) != 2 {
		return "", "", nil, fmt.Errorf("%s needs <input-path> <output-database>, got %d arguments", name, len(positional))
	}

	return positional[0], positional[1], f, nil
}

func loadConfig(f *loadFlags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}

	f.apply(cfg)
	return cfg, nil
}

func runCommand(ctx context.Context, args []string) error {
	input, database, f, err := parseLoad("run", args, false)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logHost(cfg.Warehouse)

	return a.orchestrator(input, database, f).Run(ctx)
}

func scheduleCommand(ctx context.Context, args []string) error {
	input, database, f, err := parseLoad("schedule", args, true)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if cfg.Schedule == "" {
		return errors.New("schedule needs --cron or VPLOAD_SCHEDULE")
	}

	if cfg.Policy() != catalog.ExistingOverwrite {
		return errors.New("scheduled reloads replace earlier tables, pass --overwrite or set VPLOAD_EXISTING=overwrite")
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logHost(cfg.Warehouse)

	s, err := schedule.New(cfg.Schedule, func(ctx context.Context) error {
		return a.orchestrator(input, database, f).Run(ctx)
	})
	if err != nil {
		return err
	}

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func statsCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	if len(positional) != 1 {
		return errors.New("stats needs exactly one <path>")
	}
	location := positional[0]

	var idx *stats.Index
	if triples.IsObjectLocation(location) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.readObject(ctx, location)
		if err != nil {
			return err
		}

		g, err := stats.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", location, err)
		}
		idx = stats.NewIndex(g)
	} else {
		idx, err = stats.ReadFile(location)
		if err != nil {
			return err
		}
	}

	return printStats(out, idx)
}

func printStats(out io.Writer, idx *stats.Index) error {
	var total int64
	for _, name := range idx.Names() {
		if n := idx.TableSize(name); n > 0 {
			total += int64(n)
		}
	}
	fmt.Fprintf(out, "%d tables, %d triples\n", len(idx.Names()), total)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSIZE\tSUBJECTS\tFANOUT")

	for _, name := range idx.Names() {
		fanout := "-"
		if f := idx.Fanout(name); f >= 0 {
			fanout = strconv.FormatFloat(f, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, idx.TableSize(name), idx.DistinctSubjects(name), fanout)
	}

	return tw.Flush()
}

func runsCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of runs to show")
	configPath := fs.String("config", "", "YAML config file")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.runs.Recent(*limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATABASE\tSTATE\tPREDICATES\tSTARTED\tDURATION\tERROR")

	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Database, r.State, r.Predicates, r.StartedAt.Format(time.RFC3339), duration, r.Error)
	}

	return tw.Flush()
}
