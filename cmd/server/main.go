package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"quantumparty.dev/internal/persistence/archive"
	persistlog "quantumparty.dev/internal/persistence/log"
	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/maps"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
	"quantumparty.dev/internal/transport/observer"
	"quantumparty.dev/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if cfg.Turns > 0 {
		tune.Turns = cfg.Turns
	}
	if cfg.MapName != "" {
		tune.Map = cfg.MapName
	}

	snapshotToLoad := strings.TrimSpace(cfg.SnapshotPath)
	if snapshotToLoad == "" && cfg.LoadLatest {
		snapshotToLoad = latestSnapshot(cfg.DataDir)
	}
	host, err := buildHost(cfg, tune, snapshotToLoad)
	if err != nil {
		logger.Fatalf("table: %v", err)
	}
	host.SetLogger(log.New(os.Stdout, "[match] ", log.LstdFlags|log.Lmicroseconds))
	if snapshotToLoad != "" {
		logger.Printf("resumed from snapshot=%s tick=%d game=%s", filepath.Base(snapshotToLoad), host.CurrentTick(), host.GameID())
	} else {
		logger.Printf("new game=%s map=%s turns=%d seed=%d", host.GameID(), tune.Map, tune.Turns, host.Session().Seed())
	}

	// Optional read-model index (does not affect determinism).
	tableID, _ := os.Hostname()
	if tableID == "" {
		tableID = "table"
	}
	idx, err := openRuntimeIndex(cfg, tableID, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	host.SetMetrics(match.NewMetrics(reg))
	if idx != nil {
		registerIndexMetrics(reg, idx)
	}

	tickLog := persistlog.NewTickLogger(cfg.DataDir)
	resultLog := persistlog.NewResultLogger(cfg.DataDir, func(err error) { logger.Printf("result log: %v", err) })
	defer tickLog.Close()
	defer resultLog.Close()
	host.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	host.SetResultSink(multiResultSink{a: resultLog, b: idx})

	snapCh := make(chan snapshot.SnapshotV1, 2)
	host.SetSnapshotSink(snapCh)

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := host.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		writeSnapshots(gctx, cfg.DataDir, snapCh, idx, logger)
		return nil
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/ws", ws.NewServer(host, logger).Handler())

	if cfg.EnableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				Tick  uint64          `json:"tick"`
				Table match.TableInfo `json:"table"`
			}{Tick: host.CurrentTick(), Table: host.Info()})
		})
		obsSrv := observer.NewServer(host, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (QP_ENABLE_ADMIN_HTTP=false)")
	}
	if cfg.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
}

// buildHost starts a fresh table or resumes the given snapshot.
func buildHost(cfg serverConfig, tune tuning.Tuning, snapPath string) (*match.Host, error) {
	hcfg := match.Config{
		TickRateHz:          tune.TickRateHz,
		Round:               tune.RoundConfig(),
		SnapshotEveryRounds: tune.SnapshotEveryRounds,
		AllowedTurns:        tuning.AllowedTurns,
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, err
		}
		m, err := maps.Named(snap.Map)
		if err != nil {
			return nil, err
		}
		b, err := m.Build()
		if err != nil {
			return nil, err
		}
		hcfg.TickRateHz = 0
		return match.Resume(hcfg, b, snap)
	}

	m, err := maps.Named(tune.Map)
	if err != nil {
		return nil, err
	}
	b, err := m.Build()
	if err != nil {
		return nil, err
	}
	roster, err := tune.Roster()
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s, err := game.NewSession(b, roster, tune.GameConfig(), seed)
	if err != nil {
		return nil, err
	}
	hcfg.MapName = tune.Map
	hcfg.Seed = seed
	return match.New(hcfg, s)
}

func writeSnapshots(ctx context.Context, dataDir string, ch <-chan snapshot.SnapshotV1, idx runtimeIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.PathFor(dataDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			if archived, ok, err := archive.ArchiveGameSnapshot(dataDir, path, snap); err != nil {
				logger.Printf("archive game snapshot: %v", err)
			} else if ok {
				logger.Printf("archived game=%s to %s", snap.Header.GameID, archived)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type multiTickLogger struct {
	a match.TickLogger
	b match.TickLogger
}

// WriteTick writes to both loggers even when the first fails.
func (m multiTickLogger) WriteTick(entry match.TickLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteTick(entry)
	}
	if m.b != nil {
		errB = m.b.WriteTick(entry)
	}
	return errors.Join(errA, errB)
}

type multiResultSink struct {
	a match.ResultSink
	b match.ResultSink
}

func (m multiResultSink) RecordRound(r match.RoundRecord) {
	if m.a != nil {
		m.a.RecordRound(r)
	}
	if m.b != nil {
		m.b.RecordRound(r)
	}
}

func (m multiResultSink) RecordGame(g match.GameRecord) {
	if m.a != nil {
		m.a.RecordGame(g)
	}
	if m.b != nil {
		m.b.RecordGame(g)
	}
}
