package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/gateround"
	"quantumparty.dev/internal/sim/player"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz  int    `yaml:"tick_rate_hz"`
	StepDelayMs int    `yaml:"step_delay_ms"`
	Turns       int    `yaml:"turns"`
	Map         string `yaml:"map"`

	Gain          GainAward      `yaml:"gain"`
	SeedInventory map[string]int `yaml:"seed_inventory"`
	Circuit       CircuitTuning  `yaml:"circuit"`

	SnapshotEveryRounds int `yaml:"snapshot_every_rounds"`

	Players []PlayerSpec `yaml:"players"`
}

type GainAward struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type CircuitTuning struct {
	PercentPerMarker int `yaml:"percent_per_marker"`
	MarkerEvery      int `yaml:"marker_every"`
	MaxGates         int `yaml:"max_gates"`
}

type PlayerSpec struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

// AllowedTurns are the game lengths offered at the lobby.
var AllowedTurns = []int{10, 15, 20, 25}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: protocol.Version,
		TickRateHz:      20,
		StepDelayMs:     400,
		Turns:           10,
		Map:             "classic",
		Gain:            GainAward{Min: 1, Max: 4},
		SeedInventory:   map[string]int{"H": 0, "X": 1, "Y": 1, "Z": 1},
		Circuit: CircuitTuning{
			PercentPerMarker: circuit.DefaultPercentPerMarker,
			MarkerEvery:      4,
			MaxGates:         20,
		},
		SnapshotEveryRounds: 1,
		Players: []PlayerSpec{
			{ID: "P1", Name: "Player 1", Priority: 1},
			{ID: "P2", Name: "Player 2", Priority: 2},
		},
	}
}

// Load reads a tuning file. Keys absent from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q, server speaks %q", t.ProtocolVersion, protocol.Version)
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.StepDelayMs < 0 {
		return fmt.Errorf("step_delay_ms must be >= 0")
	}
	if t.Turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if t.Gain.Min <= 0 || t.Gain.Max < t.Gain.Min {
		return fmt.Errorf("gain: need 0 < min <= max, got %d..%d", t.Gain.Min, t.Gain.Max)
	}
	if t.Circuit.PercentPerMarker <= 0 || t.Circuit.PercentPerMarker > 100 {
		return fmt.Errorf("circuit.percent_per_marker must be in 1..100")
	}
	if t.Circuit.MarkerEvery <= 0 || t.Circuit.MaxGates < 2 {
		return fmt.Errorf("circuit: marker_every must be > 0 and max_gates >= 2")
	}
	if _, err := t.Seed(); err != nil {
		return err
	}
	if len(t.Players) == 0 {
		return fmt.Errorf("players: at least one required")
	}
	seen := map[string]bool{}
	for _, p := range t.Players {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("players: empty id")
		}
		if seen[id] {
			return fmt.Errorf("players: duplicate id %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Seed converts the seed inventory to gate kinds.
func (t Tuning) Seed() (map[circuit.GateKind]int, error) {
	out := make(map[circuit.GateKind]int, len(t.SeedInventory))
	for name, n := range t.SeedInventory {
		k, err := circuit.ParseGateKind(name)
		if err != nil || k.IsMarker() {
			return nil, fmt.Errorf("seed_inventory: bad gate %q", name)
		}
		if n < 0 {
			return nil, fmt.Errorf("seed_inventory: negative count for %s", name)
		}
		out[k] = n
	}
	return out, nil
}

func (t Tuning) TickDuration() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) GameConfig() game.Config {
	return game.Config{
		Turns:            t.Turns,
		StepDelay:        time.Duration(t.StepDelayMs) * time.Millisecond,
		GainMin:          t.Gain.Min,
		GainMax:          t.Gain.Max,
		PercentPerMarker: t.Circuit.PercentPerMarker,
	}
}

func (t Tuning) RoundConfig() gateround.Config {
	return gateround.Config{MarkerEvery: t.Circuit.MarkerEvery, MaxGates: t.Circuit.MaxGates}
}

// Roster builds the lobby players in registration order.
func (t Tuning) Roster() ([]player.Player, error) {
	seed, err := t.Seed()
	if err != nil {
		return nil, err
	}
	out := make([]player.Player, len(t.Players))
	for i, p := range t.Players {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("P%d", i+1)
		}
		out[i] = player.Player{
			ID:       strings.TrimSpace(p.ID),
			Name:     name,
			Slot:     i,
			Priority: p.Priority,
			Inv:      player.NewInventory(seed),
		}
	}
	return out, nil
}
