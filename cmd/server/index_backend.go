package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"quantumparty.dev/internal/persistence/indexdb"
	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
)

type runtimeIndex interface {
	match.TickLogger
	match.ResultSink
	Close() error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	UpsertTuning(tune tuning.Tuning) error
}

func openRuntimeIndex(cfg serverConfig, tableID string, logger *log.Logger) (runtimeIndex, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	switch backend {
	case "", "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "table.sqlite"))
	case "http":
		if strings.TrimSpace(cfg.IndexHTTPURL) == "" {
			return nil, fmt.Errorf("QP_INDEX_BACKEND=http but QP_INDEX_HTTP_URL is empty")
		}
		return indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      cfg.IndexHTTPURL,
			Token:         cfg.IndexHTTPToken,
			TableID:       tableID,
			BatchSize:     cfg.IndexBatchSize,
			FlushInterval: cfg.IndexFlush,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

// registerIndexMetrics exposes the index writer's drop counters.
func registerIndexMetrics(reg prometheus.Registerer, idx runtimeIndex) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "quantumparty",
			Name:      "index_queue_depth",
			Help:      "Index writes waiting for the writer goroutine.",
		}, func() float64 { return float64(v.Stats().QueueDepth) }))
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "index_dropped_total",
			Help:      "Index writes dropped because the writer queue was full.",
		}, func() float64 {
			s := v.Stats()
			return float64(s.DropTickTotal + s.DropRoundTotal + s.DropGameTotal + s.DropSnapshotTotal)
		}))
	case *indexdb.HTTPIndex:
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "quantumparty",
			Name:      "index_queue_depth",
			Help:      "Index events waiting to be shipped.",
		}, func() float64 { return float64(v.Stats().QueueDepth) }))
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "quantumparty",
			Name:      "index_dropped_total",
			Help:      "Index events dropped by the ingest client.",
		}, func() float64 {
			s := v.Stats()
			return float64(s.QueueDroppedTotal + s.BatchDroppedTotal)
		}))
	}
}
