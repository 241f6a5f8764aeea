package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bowerhall/vpload/internal/catalog"
	"github.com/bowerhall/vpload/internal/config"
	"github.com/bowerhall/vpload/internal/delegate"
	"github.com/bowerhall/vpload/internal/ledger"
	"github.com/bowerhall/vpload/internal/loader"
	"github.com/bowerhall/vpload/internal/logger"
	"github.com/bowerhall/vpload/internal/storage"
	"github.com/bowerhall/vpload/internal/triples"
)

const storageCheckTimeout = 10 * time.Second

// app holds the long lived resources shared by the subcommands.
type app struct {
	cfg       *config.Config
	warehouse *catalog.Warehouse
	runs      *ledger.Store
	store     *storage.Client
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	w, err := catalog.Open(cfg.Warehouse)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	runs, err := ledger.NewStore(w.Metastore())
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	a := &app{cfg: cfg, warehouse: w, runs: runs}

	if cfg.Storage.Enabled {
		a.store, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			w.Close()
			return nil, err
		}

		hctx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
		healthy := a.store.Healthy(hctx)
		cancel()

		if !healthy {
			w.Close()
			return nil, fmt.Errorf("object storage at %s is not reachable", cfg.Storage.Endpoint)
		}
		logger.Debug("object storage configured", "endpoint", cfg.Storage.Endpoint)
	}

	return a, nil
}

func (a *app) Close() error {
	return a.warehouse.Close()
}

func (a *app) source() triples.Source {
	r := triples.Router{Files: triples.FileSource{}}
	if a.store != nil {
		r.Objects = triples.ObjectSource{Store: a.store}
	}
	return r
}

func (a *app) orchestrator(input, database string, f *loadFlags) *loader.Orchestrator {
	opts := loader.Options{
		Input:       input,
		Database:    database,
		StatsPath:   f.stats,
		Policy:      a.cfg.Policy(),
		Parallelism: a.cfg.Parallelism,
		Source:      a.source(),
		Ledger:      a.runs,
		Sink:        logProgress,
	}

	if a.store != nil {
		opts.Uploader = a.store
	}

	if f.jar != "" {
		opts.PropertyTable = &delegate.PropertyTableJob{
			Runner: delegate.ExecRunner{},
			Java:   a.cfg.Java,
			Jar:    f.jar,
			Stdout: os.Stdout,
		}
	}

	return loader.New(a.warehouse, opts)
}

func (a *app) readObject(ctx context.Context, location string) ([]byte, error) {
	if a.store == nil {
		return nil, errors.New("object storage not configured, set MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
	}

	bucket, key, err := triples.SplitObjectLocation(location)
	if err != nil {
		return nil, err
	}

	return a.store.Download(ctx, bucket, key)
}

func logProgress(e loader.Event) {
	logger.Info("progress", "stage", e.Stage.String(), "completed", e.Completed, "total", e.Total)
}

func logHost(warehouse string) {
	cores, _ := cpu.Counts(true)
	attrs := []any{"cpus", cores}

	if vm, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "mem_total", vm.Total, "mem_used_percent", vm.UsedPercent)
	}

	if du, err := disk.Usage(warehouse); err == nil {
		attrs = append(attrs, "warehouse_free", du.Free)
	}

	logger.Debug("host", attrs...)
}
