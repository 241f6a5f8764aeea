package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"

	"github.com/bowerhall/vpload/internal/catalog"
)

// Load reads the optional YAML file at path and applies environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Storage = loadStorageConfig(cfg.Storage)

	if cfg.Warehouse == "" {
		cfg.Warehouse = "warehouse"
	}

	if cfg.Java == "" {
		cfg.Java = "java"
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism()
	}

	if _, err := catalog.ParseExistingPolicy(cfg.Existing); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VPLOAD_WAREHOUSE"); v != "" {
		cfg.Warehouse = v
	}

	if n, err := strconv.Atoi(os.Getenv("VPLOAD_PARALLELISM")); err == nil && n > 0 {
		cfg.Parallelism = n
	}

	if v := os.Getenv("VPLOAD_EXISTING"); v != "" {
		cfg.Existing = v
	}

	if v := os.Getenv("VPLOAD_JAVA"); v != "" {
		cfg.Java = v
	}

	if v := os.Getenv("VPLOAD_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
}

func loadStorageConfig(base StorageConfig) StorageConfig {
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		base.Endpoint = v
	}
	if base.Endpoint == "" {
		base.Endpoint = "localhost:9000"
	}

	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		base.AccessKey = v
	}

	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		base.SecretKey = v
	}

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		base.UseSSL = v == "true"
	}

	base.Enabled = base.AccessKey != "" && base.SecretKey != ""

	return base
}

// DefaultParallelism is the number of logical CPUs, at least 1.
func DefaultParallelism() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}

	if n < 1 {
		return 1
	}

	return n
}

// Policy returns the parsed existing table policy.
func (c *Config) Policy() catalog.ExistingPolicy {
	p, _ := catalog.ParseExistingPolicy(c.Existing)
	return p
}
