package circuit

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPlacedGate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		gate    PlacedGate
		wantErr error
	}{
		{name: "H on wire 1", gate: Single(GateH, 1)},
		{name: "CNOT", gate: Pair(GateCNOT, 1, 0)},
		{name: "marker", gate: Marker()},
		{name: "wire out of range", gate: Single(GateX, 2), wantErr: ErrBadWires},
		{name: "single gate with two wires", gate: Pair(GateZ, 0, 1), wantErr: ErrBadWires},
		{name: "CNOT on one wire", gate: Pair(GateCNOT, 0, 0), wantErr: ErrBadWires},
		{name: "marker with wire", gate: PlacedGate{Kind: GateDecoherence, Wires: []int{0}}, wantErr: ErrBadWires},
		{name: "unknown", gate: PlacedGate{Kind: GateKind(99)}, wantErr: ErrUnknownGate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.gate.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgram_MarkerCount(t *testing.T) {
	p := Prelude()
	_ = p.Append(Single(GateX, 0))
	_ = p.Append(Marker())
	_ = p.Append(Pair(GateSWAP, 0, 1))
	_ = p.Append(Marker())
	if got := p.MarkerCount(); got != 2 {
		t.Fatalf("MarkerCount() = %d, want 2", got)
	}
	if got := p.OperationCount(); got != 4 {
		t.Fatalf("OperationCount() = %d, want 4", got)
	}
	if err := p.Append(Single(GateH, 5)); err == nil {
		t.Fatalf("Append accepted an out-of-range wire")
	}
	if len(p.Gates) != 6 {
		t.Fatalf("rejected gate was appended")
	}
}

func TestGateKind_JSONUsesNames(t *testing.T) {
	b, err := json.Marshal(Pair(GateCNOT, 0, 1))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"kind":"CNOT","wires":[0,1]}` {
		t.Fatalf("unexpected json: %s", b)
	}
	var g PlacedGate
	if err := json.Unmarshal([]byte(`{"kind":"cx","wires":[1,0]}`), &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if g.Kind != GateCNOT || g.Wires[0] != 1 {
		t.Fatalf("unexpected gate: %+v", g)
	}
}

func TestParseOutcome(t *testing.T) {
	for _, s := range []string{"00", "01", "10", "11"} {
		o, err := ParseOutcome(s)
		if err != nil || string(o) != s {
			t.Fatalf("ParseOutcome(%q) = %q, %v", s, o, err)
		}
	}
	if _, err := ParseOutcome("2"); err == nil {
		t.Fatalf("ParseOutcome accepted garbage")
	}
}
