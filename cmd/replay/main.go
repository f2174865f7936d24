package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "quantumparty.dev/internal/persistence/log"
	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/maps"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional)")
		ticksDir   = flag.String("ticks", "", "journal dir containing ticks-*.jsonl.zst (default: <data>/ticks)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning used for a fresh table (ignored with -snapshot)")
		seed       = flag.Int64("seed", 0, "seed of the recorded game (required without -snapshot)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	var (
		h   *match.Host
		err error
	)
	if *snapPath != "" {
		h, err = fromSnapshot(*snapPath)
	} else {
		if *seed == 0 {
			fmt.Fprintln(os.Stderr, "missing -seed (or -snapshot)")
			os.Exit(2)
		}
		h, err = freshTable(*tuningPath, *seed)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "table:", err)
		os.Exit(1)
	}
	fmt.Printf("table game=%s tick=%d seed=%d\n", h.GameID(), h.CurrentTick(), h.Session().Seed())

	dir := *ticksDir
	if dir == "" {
		dir = persistlog.TickDir(*dataDir)
	}
	files, err := persistlog.ListTickFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", dir)
		os.Exit(1)
	}

	start := h.CurrentTick()
	checked, err := replay(h, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d)\n", checked, start)
}

func fromSnapshot(path string) (*match.Host, error) {
	snap, err := snapshot.ReadSnapshot(path)
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
	// Snapshots written before allowed_turns was recorded fall back to the
	// lobby lengths the server enforces.
	cfg := match.Config{}
	if len(snap.AllowedTurns) == 0 {
		cfg.AllowedTurns = tuning.AllowedTurns
	}
	return match.Resume(cfg, b, snap)
}

func freshTable(tuningPath string, seed int64) (*match.Host, error) {
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		tune = tuning.Defaults()
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
	s, err := game.NewSession(b, roster, tune.GameConfig(), seed)
	if err != nil {
		return nil, err
	}
	return match.New(match.Config{
		MapName:      tune.Map,
		TickRateHz:   tune.TickRateHz,
		Seed:         seed,
		Round:        tune.RoundConfig(),
		AllowedTurns: tuning.AllowedTurns,
	}, s)
}

var errDone = errors.New("reached to_tick")

// replay re-steps h through the journal and compares digests. Entries before
// the host's current tick are skipped.
func replay(h *match.Host, files []string, fromTick, toTick uint64) (uint64, error) {
	start := h.CurrentTick()
	verifyFrom := fromTick
	if verifyFrom < start {
		verifyFrom = start
	}
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(entry match.TickLogEntry) error {
			if entry.Tick < start {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errDone
			}
			if entry.Tick != h.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", h.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			tick, digest := h.StepOnce(entry.Inputs)
			if tick >= verifyFrom {
				checked++
				if digest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errDone) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
