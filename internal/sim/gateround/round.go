// Package gateround runs the gate-authoring minigame between board rounds.
//
// Players take turns appending gates from their own tokens to a shared
// two-wire program that starts with a Hadamard on each wire. A player may
// skip, which removes them from the rest of the round. The round works on
// copies of the inventories; the session only sees them through Result.
package gateround

import (
	"errors"
	"fmt"

	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/player"
)

var (
	ErrRoundClosed = errors.New("gate round closed")
	ErrCircuitFull = errors.New("circuit full")
	ErrNoneActive  = errors.New("every player has skipped")
	ErrNotYourTurn = errors.New("not this player's turn in the gate round")
)

type Config struct {
	// MarkerEvery appends a decoherence marker after every n placed gates.
	MarkerEvery int
	// MaxGates bounds the program length, prelude and markers included.
	MaxGates int
}

func DefaultConfig() Config { return Config{MarkerEvery: 4, MaxGates: 20} }

type seat struct {
	id      string
	inv     player.Inventory
	skipped bool
}

type Round struct {
	cfg     Config
	seats   []seat
	current int
	program circuit.Program
	placed  int
	closed  bool
}

// New opens a round for players in the given seating order.
func New(players []player.Player, cfg Config) *Round {
	d := DefaultConfig()
	if cfg.MarkerEvery <= 0 {
		cfg.MarkerEvery = d.MarkerEvery
	}
	if cfg.MaxGates <= 0 {
		cfg.MaxGates = d.MaxGates
	}
	r := &Round{cfg: cfg, program: circuit.Prelude()}
	for _, p := range players {
		r.seats = append(r.seats, seat{id: p.ID, inv: p.Inv.Clone()})
	}
	return r
}

// Current returns the id of the player to act, or false when nobody is left.
func (r *Round) Current() (string, bool) {
	if r.closed || len(r.seats) == 0 || r.seats[r.current].skipped {
		return "", false
	}
	return r.seats[r.current].id, true
}

func (r *Round) Closed() bool { return r.closed }

// Done reports whether no further gate can be placed.
func (r *Round) Done() bool {
	_, ok := r.Current()
	return !ok || r.full()
}

func (r *Round) full() bool { return len(r.program.Gates) >= r.cfg.MaxGates }

func (r *Round) Program() circuit.Program { return r.program.Clone() }

// Inventory returns the working copy of a participant's tokens.
func (r *Round) Inventory(id string) (player.Inventory, bool) {
	for _, s := range r.seats {
		if s.id == id {
			return s.inv.Clone(), true
		}
	}
	return player.Inventory{}, false
}

// Gate builds the placed gate for kind dropped on wires. A CNOT dropped on
// one wire uses it as control and the other wire as target; SWAP always acts
// on both wires.
func Gate(kind circuit.GateKind, wires ...int) (circuit.PlacedGate, error) {
	if kind.IsMarker() {
		return circuit.PlacedGate{}, fmt.Errorf("%s: %w", kind, circuit.ErrUnknownGate)
	}
	var g circuit.PlacedGate
	switch kind {
	case circuit.GateCNOT:
		switch len(wires) {
		case 1:
			g = circuit.Pair(kind, wires[0], 1-wires[0])
		default:
			g = circuit.PlacedGate{Kind: kind, Wires: append([]int(nil), wires...)}
		}
	case circuit.GateSWAP:
		g = circuit.Pair(kind, 0, 1)
	default:
		g = circuit.PlacedGate{Kind: kind, Wires: append([]int(nil), wires...)}
	}
	if err := g.Validate(); err != nil {
		return circuit.PlacedGate{}, err
	}
	return g, nil
}

// Place spends one token of kind from the current player and appends the
// gate. by, when non-empty, must name the current player.
func (r *Round) Place(by string, kind circuit.GateKind, wires ...int) (circuit.PlacedGate, error) {
	if r.closed {
		return circuit.PlacedGate{}, ErrRoundClosed
	}
	if r.full() {
		return circuit.PlacedGate{}, ErrCircuitFull
	}
	cur, ok := r.Current()
	if !ok {
		return circuit.PlacedGate{}, ErrNoneActive
	}
	if by != "" && by != cur {
		return circuit.PlacedGate{}, fmt.Errorf("%w: %q acts, %q is up", ErrNotYourTurn, by, cur)
	}
	g, err := Gate(kind, wires...)
	if err != nil {
		return circuit.PlacedGate{}, err
	}
	if _, err := r.seats[r.current].inv.SpendGate(kind); err != nil {
		return circuit.PlacedGate{}, err
	}
	r.program.Gates = append(r.program.Gates, g)
	r.placed++
	// The marker never pushes the program past MaxGates.
	if r.placed%r.cfg.MarkerEvery == 0 && !r.full() {
		r.program.Gates = append(r.program.Gates, circuit.Marker())
	}
	r.rotate()
	return g, nil
}

// Skip takes the current player out of the round.
func (r *Round) Skip(by string) error {
	if r.closed {
		return ErrRoundClosed
	}
	cur, ok := r.Current()
	if !ok {
		return ErrNoneActive
	}
	if by != "" && by != cur {
		return fmt.Errorf("%w: %q acts, %q is up", ErrNotYourTurn, by, cur)
	}
	r.seats[r.current].skipped = true
	r.rotate()
	return nil
}

func (r *Round) rotate() {
	n := len(r.seats)
	for i := 0; i < n; i++ {
		r.current = (r.current + 1) % n
		if !r.seats[r.current].skipped {
			return
		}
	}
}

// Preview is the probability table of the program as it stands.
func (r *Round) Preview(e circuit.Engine) circuit.Distribution {
	return e.Probabilities(r.program)
}

// Close ends the round and returns its result. Later calls return the same
// result.
func (r *Round) Close() game.GateRoundResult {
	r.closed = true
	return r.Result()
}

func (r *Round) Result() game.GateRoundResult {
	res := game.GateRoundResult{
		Program:     r.program.Clone(),
		Inventories: make(map[string]player.Inventory, len(r.seats)),
	}
	for _, s := range r.seats {
		res.Inventories[s.id] = s.inv.Clone()
	}
	return res
}
