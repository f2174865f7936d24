package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// serverConfig is read from QP_* environment variables first; flags given on
// the command line win.
type serverConfig struct {
	Addr       string `env:"QP_ADDR" envDefault:":8080"`
	DataDir    string `env:"QP_DATA_DIR" envDefault:"./data"`
	ConfigDir  string `env:"QP_CONFIG_DIR" envDefault:"./configs"`
	TuningPath string `env:"QP_TUNING"`
	MapName    string `env:"QP_MAP"`
	Seed       int64  `env:"QP_SEED"`
	Turns      int    `env:"QP_TURNS"`

	SnapshotPath string `env:"QP_SNAPSHOT"`
	LoadLatest   bool   `env:"QP_LOAD_LATEST_SNAPSHOT" envDefault:"true"`

	IndexBackend   string        `env:"QP_INDEX_BACKEND" envDefault:"sqlite"`
	IndexHTTPURL   string        `env:"QP_INDEX_HTTP_URL"`
	IndexHTTPToken string        `env:"QP_INDEX_HTTP_TOKEN"`
	IndexBatchSize int           `env:"QP_INDEX_HTTP_BATCH_SIZE" envDefault:"128"`
	IndexFlush     time.Duration `env:"QP_INDEX_HTTP_FLUSH" envDefault:"500ms"`

	EnableAdminHTTP bool `env:"QP_ENABLE_ADMIN_HTTP" envDefault:"true"`
	EnablePprofHTTP bool `env:"QP_ENABLE_PPROF_HTTP"`
}

func loadConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.MapName, "map", cfg.MapName, "map name or path to a map yaml (default: tuning map)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "game seed for a fresh table (0 picks one from the clock)")
	fs.IntVar(&cfg.Turns, "turns", cfg.Turns, "game length override (0 uses tuning)")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "path to snapshot to load (optional)")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "load latest snapshot from data dir if present (when -snapshot is empty)")
	fs.StringVar(&cfg.IndexBackend, "index", cfg.IndexBackend, "results index backend: sqlite, http or none")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}
