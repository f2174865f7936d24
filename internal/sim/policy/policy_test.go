package policy

import (
	"testing"

	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/circuit"
)

func TestApply(t *testing.T) {
	g, err := board.Build(
		[]board.Space{{ID: "a", Kind: board.Toggle}, {ID: "b", Kind: board.Gain}, {ID: "c", Kind: board.Gain}},
		[]board.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		o    circuit.Outcome
		want board.Transform
		succ int
	}{
		{circuit.Outcome01, board.TransformToggleFirst, 1},
		{circuit.Outcome00, board.TransformIdentity, 2},
		{circuit.Outcome11, board.TransformReversed, 0},
		{circuit.Outcome10, board.TransformToggleSecond, 1},
	}
	for _, tt := range tests {
		if got := Apply(g, tt.o); got != tt.want {
			t.Fatalf("Apply(%s) = %s, want %s", tt.o, got, tt.want)
		}
		if n := len(g.Successors("a")); n != tt.succ {
			t.Fatalf("after %s: %d successors of a, want %d", tt.o, n, tt.succ)
		}
	}
}
