package main

import (
	"errors"
	"flag"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
)

func TestLoadConfig_EnvThenFlags(t *testing.T) {
	t.Setenv("QP_ADDR", ":9000")
	t.Setenv("QP_DATA_DIR", "/tmp/qp")
	t.Setenv("QP_INDEX_BACKEND", "none")

	cfg, err := loadConfig(flag.NewFlagSet("t", flag.ContinueOnError), []string{"-addr", ":9100", "-turns", "15"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" || cfg.DataDir != "/tmp/qp" || cfg.IndexBackend != "none" || cfg.Turns != 15 || !cfg.LoadLatest {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	cfg := serverConfig{DataDir: t.TempDir(), IndexBackend: "none"}
	if idx, err := openRuntimeIndex(cfg, "t1", nil); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}
	cfg.IndexBackend = "http"
	if _, err := openRuntimeIndex(cfg, "t1", nil); err == nil {
		t.Fatalf("http without url should fail")
	}
	cfg.IndexBackend = "bogus"
	if _, err := openRuntimeIndex(cfg, "t1", nil); err == nil {
		t.Fatalf("unknown backend should fail")
	}
	cfg.IndexBackend = "sqlite"
	idx, err := openRuntimeIndex(cfg, "t1", nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = idx.Close()
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
	snaps := filepath.Join(dir, "snapshots")
	_ = os.MkdirAll(snaps, 0o755)
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "35.snap.zst", "junk.snap.zst", "200.txt"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
}

func TestBuildHost_FreshThenResume(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.Turns = 15
	h, err := buildHost(serverConfig{Seed: 99}, tune, "")
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if h.Session().Seed() != 99 || h.Info().Params.Turns != 15 || len(h.Info().Seats) != len(tune.Players) {
		t.Fatalf("info=%+v", h.Info())
	}
	for i := 0; i < 5; i++ {
		h.StepOnce(nil)
	}

	path := snapshot.PathFor(dir, h.CurrentTick())
	if err := snapshot.WriteSnapshot(path, h.ExportSnapshot(h.CurrentTick(), false)); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := buildHost(serverConfig{}, tune, path)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if r.CurrentTick() != 5 || r.GameID() != h.GameID() || r.TickRateHz() != tune.TickRateHz {
		t.Fatalf("resumed tick=%d game=%s", r.CurrentTick(), r.GameID())
	}
	_, want := h.StepOnce(nil)
	_, got := r.StepOnce(nil)
	if got != want {
		t.Fatalf("digest diverged after resume")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if isLoopbackRemote(req.RemoteAddr) {
		t.Fatalf("httptest default remote %q is not loopback", req.RemoteAddr)
	}
	if !isLoopbackRemote("127.0.0.1:80") || !isLoopbackRemote("[::1]:80") {
		t.Fatalf("loopback not detected")
	}
}

func TestMultiResultSink_FansOut(t *testing.T) {
	a, b := &countSink{}, &countSink{}
	m := multiResultSink{a: a, b: b}
	m.RecordRound(match.RoundRecord{})
	m.RecordGame(match.GameRecord{})
	multiResultSink{a: a}.RecordRound(match.RoundRecord{})
	if a.n != 3 || b.n != 2 {
		t.Fatalf("a=%d b=%d", a.n, b.n)
	}
}

type countSink struct{ n int }

func (c *countSink) RecordRound(match.RoundRecord) { c.n++ }
func (c *countSink) RecordGame(match.GameRecord)   { c.n++ }

func TestMultiTickLogger_ReportsErrors(t *testing.T) {
	diskFull := errors.New("no space left on device")
	a, b := &tickSink{err: diskFull}, &tickSink{}
	err := multiTickLogger{a: a, b: b}.WriteTick(match.TickLogEntry{Tick: 3})
	if !errors.Is(err, diskFull) {
		t.Fatalf("err=%v", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("a=%d b=%d", a.n, b.n)
	}
	if err := (multiTickLogger{b: b}).WriteTick(match.TickLogEntry{Tick: 4}); err != nil {
		t.Fatalf("healthy logger err=%v", err)
	}
}

type tickSink struct {
	n   int
	err error
}

func (s *tickSink) WriteTick(match.TickLogEntry) error {
	s.n++
	return s.err
}
