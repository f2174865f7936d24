package player

import (
	"errors"
	"testing"

	"quantumparty.dev/internal/sim/circuit"
)

func TestSpendGate(t *testing.T) {
	inv := NewInventory(DefaultSeed())
	if inv.Count(circuit.GateH) != 0 || inv.Count(circuit.GateX) != 1 {
		t.Fatalf("unexpected seed: %+v", inv.Gates)
	}

	_, err := inv.SpendGate(circuit.GateH)
	var ig *InsufficientGateError
	if !errors.As(err, &ig) || ig.Kind != circuit.GateH {
		t.Fatalf("SpendGate(H) = %v, want InsufficientGateError", err)
	}
	if inv.Count(circuit.GateH) != 0 || inv.Total() != 3 {
		t.Fatalf("failed spend changed the inventory: %+v", inv.Gates)
	}

	k, err := inv.SpendGate(circuit.GateX)
	if err != nil || k != circuit.GateX {
		t.Fatalf("SpendGate(X) = %v, %v", k, err)
	}
	if inv.Count(circuit.GateX) != 0 || inv.Total() != 2 {
		t.Fatalf("spend not applied: %+v", inv.Gates)
	}
}

func TestInventory_CloneIsIndependent(t *testing.T) {
	inv := NewInventory(DefaultSeed())
	cp := inv.Clone()
	cp.AddGates(circuit.GateCNOT, 2)
	cp.AddStar(1)
	if inv.Count(circuit.GateCNOT) != 0 || inv.Stars != 0 {
		t.Fatalf("clone aliases the original")
	}
}

func TestTurnOrder(t *testing.T) {
	ps := []Player{
		{ID: "a", Slot: 0, Priority: 2},
		{ID: "b", Slot: 1, Priority: 1},
		{ID: "c", Slot: 2, Priority: 2},
		{ID: "d", Slot: 3, Priority: 1},
	}
	got := TurnOrder(ps)
	want := []string{"b", "d", "a", "c"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
	if ps[0].ID != "a" {
		t.Fatalf("input slice was reordered")
	}
}

func TestStandings(t *testing.T) {
	mk := func(id string, stars, gates int) Player {
		inv := NewInventory(nil)
		inv.AddGates(circuit.GateH, gates)
		inv.AddStar(stars)
		return Player{ID: id, Inv: inv}
	}
	got := Standings([]Player{mk("p1", 1, 5), mk("p2", 2, 0), mk("p3", 1, 7), mk("p4", 1, 5)})
	wantIDs := []string{"p2", "p3", "p1", "p4"}
	wantRanks := []int{1, 2, 3, 3}
	for i := range got {
		if got[i].ID != wantIDs[i] || got[i].Rank != wantRanks[i] {
			t.Fatalf("standings[%d] = %+v, want id=%s rank=%d", i, got[i], wantIDs[i], wantRanks[i])
		}
	}
}
