package log

import (
	"errors"
	"testing"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/match"
)

func TestTickLogger_RoundTripsThroughReadTicks(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	choice := 1
	entries := []match.TickLogEntry{
		{Tick: 0, GameID: "g", Digest: "d0"},
		{Tick: 1, GameID: "g", Digest: "d1", Inputs: []match.RecordedInput{
			{Seat: "P1", Input: protocol.InputMsg{Type: protocol.TypeInput, Seq: 3, Input: protocol.InputChoose, Choice: &choice}},
		}},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListTickFiles(TickDir(dir))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no journal files")
	}
	var got []match.TickLogEntry
	for _, f := range files {
		if err := ReadTicks(f, func(e match.TickLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(got) != 2 || got[1].Digest != "d1" || got[1].Inputs[0].Seat != "P1" || *got[1].Inputs[0].Input.Choice != 1 {
		t.Fatalf("got=%+v", got)
	}
}

func TestReadTicks_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 3; i++ {
		if err := l.WriteTick(match.TickLogEntry{Tick: i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = l.Close()
	files, _ := ListTickFiles(TickDir(dir))

	stop := errors.New("stop")
	n := 0
	err := ReadTicks(files[0], func(match.TickLogEntry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
