package circuit

import (
	"errors"
	"fmt"
	"strings"
)

// Wires is the width of the shared register.
const Wires = 2

// GateKind names an operation that can be placed on the register.
type GateKind int

const (
	GateUnspecified GateKind = iota
	GateH
	GateX
	GateY
	GateZ
	GateCNOT
	GateSWAP
	// GateDecoherence is not an operation. It marks one accumulated noise
	// event in a program.
	GateDecoherence
)

var gateNames = map[GateKind]string{
	GateH:           "H",
	GateX:           "X",
	GateY:           "Y",
	GateZ:           "Z",
	GateCNOT:        "CNOT",
	GateSWAP:        "SWAP",
	GateDecoherence: "DECOH",
}

// Alphabet is the set of tokens a player can hold, in display order.
func Alphabet() []GateKind {
	return []GateKind{GateH, GateX, GateY, GateZ, GateCNOT, GateSWAP}
}

func (k GateKind) String() string {
	if s, ok := gateNames[k]; ok {
		return s
	}
	return "UNSPECIFIED"
}

// ParseGateKind accepts the canonical names ("H", "CNOT", "DECOH", ...),
// case-insensitively. "CX" is accepted for CNOT.
func ParseGateKind(s string) (GateKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return GateH, nil
	case "X":
		return GateX, nil
	case "Y":
		return GateY, nil
	case "Z":
		return GateZ, nil
	case "CNOT", "CX":
		return GateCNOT, nil
	case "SWAP":
		return GateSWAP, nil
	case "DECOH", "DECOHERENCE":
		return GateDecoherence, nil
	}
	return GateUnspecified, fmt.Errorf("%w: %q", ErrUnknownGate, s)
}

func (k GateKind) MarshalText() ([]byte, error) {
	if _, ok := gateNames[k]; !ok {
		return nil, fmt.Errorf("marshal gate kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *GateKind) UnmarshalText(b []byte) error {
	v, err := ParseGateKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Arity is the number of wires the gate acts on. Markers act on none.
func (k GateKind) Arity() int {
	switch k {
	case GateH, GateX, GateY, GateZ:
		return 1
	case GateCNOT, GateSWAP:
		return 2
	}
	return 0
}

// IsMarker reports whether k is a noise marker rather than an operation.
func (k GateKind) IsMarker() bool { return k == GateDecoherence }

var (
	ErrUnknownGate = errors.New("unknown gate kind")
	ErrBadWires    = errors.New("gate wires out of range or mismatched")
)

// PlacedGate is one entry of a program. For CNOT, Wires[0] is the control and
// Wires[1] the target.
type PlacedGate struct {
	Kind  GateKind `json:"kind"`
	Wires []int    `json:"wires,omitempty"`
}

func Single(kind GateKind, wire int) PlacedGate {
	return PlacedGate{Kind: kind, Wires: []int{wire}}
}

func Pair(kind GateKind, a, b int) PlacedGate {
	return PlacedGate{Kind: kind, Wires: []int{a, b}}
}

func Marker() PlacedGate { return PlacedGate{Kind: GateDecoherence} }

func (g PlacedGate) Validate() error {
	if _, ok := gateNames[g.Kind]; !ok {
		return ErrUnknownGate
	}
	if len(g.Wires) != g.Kind.Arity() {
		return fmt.Errorf("%s: %w", g.Kind, ErrBadWires)
	}
	for _, w := range g.Wires {
		if w < 0 || w >= Wires {
			return fmt.Errorf("%s wire %d: %w", g.Kind, w, ErrBadWires)
		}
	}
	if len(g.Wires) == 2 && g.Wires[0] == g.Wires[1] {
		return fmt.Errorf("%s on a single wire: %w", g.Kind, ErrBadWires)
	}
	return nil
}

func (g PlacedGate) String() string {
	if len(g.Wires) == 0 {
		return g.Kind.String()
	}
	parts := make([]string, len(g.Wires))
	for i, w := range g.Wires {
		parts[i] = fmt.Sprint(w)
	}
	return g.Kind.String() + "(" + strings.Join(parts, ",") + ")"
}

// Program is an ordered gate sequence with decoherence markers interleaved
// where they accumulated.
type Program struct {
	Gates []PlacedGate `json:"gates"`
}

// Prelude is the fixed start of every round: a Hadamard on each wire.
func Prelude() Program {
	return Program{Gates: []PlacedGate{Single(GateH, 0), Single(GateH, 1)}}
}

// Append validates g and adds it to the program.
func (p *Program) Append(g PlacedGate) error {
	if err := g.Validate(); err != nil {
		return err
	}
	p.Gates = append(p.Gates, g)
	return nil
}

// MarkerCount is the number of decoherence markers in the program.
func (p Program) MarkerCount() int {
	n := 0
	for _, g := range p.Gates {
		if g.Kind.IsMarker() {
			n++
		}
	}
	return n
}

// OperationCount is the number of real gates, markers excluded.
func (p Program) OperationCount() int { return len(p.Gates) - p.MarkerCount() }

func (p Program) Clone() Program {
	out := Program{Gates: make([]PlacedGate, len(p.Gates))}
	for i, g := range p.Gates {
		out.Gates[i] = PlacedGate{Kind: g.Kind, Wires: append([]int(nil), g.Wires...)}
	}
	return out
}

func (p Program) String() string {
	parts := make([]string, len(p.Gates))
	for i, g := range p.Gates {
		parts[i] = g.String()
	}
	return strings.Join(parts, " ")
}
