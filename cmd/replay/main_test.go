package main

import (
	"path/filepath"
	"testing"

	persistlog "quantumparty.dev/internal/persistence/log"
	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/match"
)

func roll(seat string) match.RecordedInput {
	return match.RecordedInput{Seat: seat, Input: protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Input: protocol.InputRoll,
	}}
}

func TestReplay_MatchesJournal(t *testing.T) {
	dir := t.TempDir()
	live, err := freshTable("does-not-exist.yaml", 42)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	live.SetTickLogger(tl)
	active := live.Session().Snapshot().Active
	for i := 0; i < 30; i++ {
		var inputs []match.RecordedInput
		if i%10 == 0 {
			inputs = append(inputs, roll(active), roll(active))
		}
		live.StepOnce(inputs)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := persistlog.ListTickFiles(persistlog.TickDir(dir))
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}

	again, err := freshTable("does-not-exist.yaml", 42)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	checked, err := replay(again, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 30 || again.CurrentTick() != 30 {
		t.Fatalf("checked=%d tick=%d", checked, again.CurrentTick())
	}

	// A different seed diverges at the first roll.
	other, _ := freshTable("does-not-exist.yaml", 43)
	if _, err := replay(other, files, 0, 0); err == nil {
		t.Fatalf("expected digest mismatch")
	}

	// to_tick stops early.
	short, _ := freshTable("does-not-exist.yaml", 42)
	checked, err = replay(short, files, 0, 9)
	if err != nil || checked != 10 {
		t.Fatalf("checked=%d err=%v", checked, err)
	}
}

func TestReplay_FromSnapshotKeepsResetRules(t *testing.T) {
	dir := t.TempDir()
	live, err := freshTable("does-not-exist.yaml", 7)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	snapPath := filepath.Join(dir, "snap", "0.snap.zst")
	if err := snapshot.WriteSnapshot(snapPath, live.ExportSnapshot(live.CurrentTick(), false)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	tl := persistlog.NewTickLogger(dir)
	live.SetTickLogger(tl)
	reset := match.RecordedInput{Input: protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Input: protocol.InputReset, Turns: 7,
	}}
	turnsBefore := live.Session().Turn().TurnsRemaining
	live.StepOnce([]match.RecordedInput{reset})
	if got := live.Session().Turn().TurnsRemaining; got != turnsBefore {
		t.Fatalf("live table accepted turns=7: remaining=%d", got)
	}
	live.StepOnce([]match.RecordedInput{roll(live.Session().Snapshot().Active)})
	for i := 0; i < 10; i++ {
		live.StepOnce(nil)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := persistlog.ListTickFiles(persistlog.TickDir(dir))
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}

	h, err := fromSnapshot(snapPath)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	if h.CurrentTick() != 0 {
		t.Fatalf("resumed at tick %d", h.CurrentTick())
	}
	checked, err := replay(h, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got, want := h.Session().Turn().TurnsRemaining, live.Session().Turn().TurnsRemaining; got != want {
		t.Fatalf("replayed turns remaining=%d live=%d", got, want)
	}
	if checked != 12 {
		t.Fatalf("checked=%d", checked)
	}
}
