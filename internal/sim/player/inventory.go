package player

import (
	"fmt"

	"quantumparty.dev/internal/sim/circuit"
)

// InsufficientGateError is returned by SpendGate when the counter for the
// requested kind is zero. The inventory is left unchanged.
type InsufficientGateError struct {
	Kind circuit.GateKind
}

func (e *InsufficientGateError) Error() string {
	return fmt.Sprintf("no %s gate left", e.Kind)
}

// Inventory is a player's token counters. Counters are never negative.
type Inventory struct {
	Gates map[circuit.GateKind]int `json:"gates"`
	Stars int                      `json:"stars"`
}

func NewInventory(seed map[circuit.GateKind]int) Inventory {
	inv := Inventory{Gates: make(map[circuit.GateKind]int, len(circuit.Alphabet()))}
	for _, k := range circuit.Alphabet() {
		inv.Gates[k] = 0
	}
	for k, n := range seed {
		if n > 0 && !k.IsMarker() {
			inv.Gates[k] = n
		}
	}
	return inv
}

// DefaultSeed is the lobby starting hand.
func DefaultSeed() map[circuit.GateKind]int {
	return map[circuit.GateKind]int{
		circuit.GateH: 0,
		circuit.GateX: 1,
		circuit.GateY: 1,
		circuit.GateZ: 1,
	}
}

func (inv *Inventory) AddGates(kind circuit.GateKind, n int) {
	if n <= 0 {
		return
	}
	if inv.Gates == nil {
		inv.Gates = map[circuit.GateKind]int{}
	}
	inv.Gates[kind] += n
}

func (inv *Inventory) SpendGate(kind circuit.GateKind) (circuit.GateKind, error) {
	if inv.Gates[kind] <= 0 {
		return kind, &InsufficientGateError{Kind: kind}
	}
	inv.Gates[kind]--
	return kind, nil
}

func (inv *Inventory) AddStar(n int) {
	if n > 0 {
		inv.Stars += n
	}
}

func (inv Inventory) Count(kind circuit.GateKind) int { return inv.Gates[kind] }

// Total is the number of gate tokens held, stars excluded.
func (inv Inventory) Total() int {
	n := 0
	for _, c := range inv.Gates {
		n += c
	}
	return n
}

func (inv Inventory) Clone() Inventory {
	out := Inventory{Stars: inv.Stars, Gates: make(map[circuit.GateKind]int, len(inv.Gates))}
	for k, n := range inv.Gates {
		out.Gates[k] = n
	}
	return out
}

// Counts returns gate counters keyed by gate name, for presentation.
func (inv Inventory) Counts() map[string]int {
	out := make(map[string]int, len(inv.Gates))
	for k, n := range inv.Gates {
		out[k.String()] = n
	}
	return out
}
