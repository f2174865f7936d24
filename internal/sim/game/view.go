package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/player"
	"quantumparty.dev/internal/sim/rng"
)

// View is the read-only presentation snapshot. It shares no memory with the
// session.
type View struct {
	Spaces    []board.Space   `json:"spaces"`
	Edges     []board.Edge    `json:"edges"`
	Transform board.Transform `json:"transform"`
	Players   []PlayerView    `json:"players"`
	Turn      TurnState       `json:"turn"`
	Active    string          `json:"active"`
}

type PlayerView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position string         `json:"position"`
	Stars    int            `json:"stars"`
	Gates    map[string]int `json:"gates"`
}

func (s *Session) Snapshot() View {
	v := View{
		Spaces:    s.board.Spaces(),
		Edges:     s.board.Edges(),
		Transform: s.board.Transform(),
		Turn:      s.turn.clone(),
		Active:    s.players[s.turn.ActivePlayer].ID,
		Players:   make([]PlayerView, len(s.players)),
	}
	for i, p := range s.players {
		v.Players[i] = PlayerView{
			ID:       p.ID,
			Name:     p.Name,
			Position: p.Position,
			Stars:    p.Inv.Stars,
			Gates:    p.Inv.Counts(),
		}
	}
	return v
}

// Digest is a stable hash over the full game state, random stream included.
// Replays compare it tick by tick.
func (s *Session) Digest() string {
	st, draws := s.rng.State()
	payload := struct {
		View  View   `json:"view"`
		Timer int64  `json:"timer"`
		RNG   uint64 `json:"rng"`
		Draws uint64 `json:"draws"`
	}{s.Snapshot(), int64(s.turn.StepTimer), st, draws}
	b, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("digest: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Saved is the serialisable session state used by snapshots.
type Saved struct {
	Config     Config
	Seed       int64
	RNGState   uint64
	RNGDraws   uint64
	Roster     []player.Player
	Players    []player.Player
	Turn       TurnState
	SpaceKinds map[string]board.SpaceKind
	Transform  board.Transform
}

func (s *Session) Export() Saved {
	st, draws := s.rng.State()
	out := Saved{
		Config:     s.cfg,
		Seed:       s.seed,
		RNGState:   st,
		RNGDraws:   draws,
		Turn:       s.turn.clone(),
		SpaceKinds: make(map[string]board.SpaceKind),
		Transform:  s.board.Transform(),
	}
	for _, p := range s.roster {
		out.Roster = append(out.Roster, p.Clone())
	}
	out.Players = s.Players()
	for _, sp := range s.board.Spaces() {
		out.SpaceKinds[sp.ID] = sp.Kind
	}
	return out
}

// Import rebuilds a session on b from saved state. b must be built from the
// same map the state was saved on.
func Import(b *board.Graph, sv Saved) (*Session, error) {
	if len(sv.Players) == 0 {
		return nil, ErrNoPlayers
	}
	if sv.Turn.ActivePlayer < 0 || sv.Turn.ActivePlayer >= len(sv.Players) {
		return nil, fmt.Errorf("saved active player %d out of range", sv.Turn.ActivePlayer)
	}
	// b is left untouched unless the whole save checks out.
	for id, k := range sv.SpaceKinds {
		if !b.Has(id) {
			return nil, fmt.Errorf("saved kind for unknown space %q", id)
		}
		if !k.Valid() {
			return nil, fmt.Errorf("saved kind %d for space %q invalid", int(k), id)
		}
	}
	if !sv.Transform.Valid() {
		return nil, fmt.Errorf("saved transform %q invalid", sv.Transform)
	}
	for _, p := range sv.Players {
		if !b.Has(p.Position) {
			return nil, fmt.Errorf("saved player %q on unknown space %q", p.ID, p.Position)
		}
	}
	for id, k := range sv.SpaceKinds {
		if err := b.SetKind(id, k); err != nil {
			return nil, err
		}
	}
	if err := b.SetTransform(sv.Transform); err != nil {
		return nil, err
	}
	cfg := sv.Config.normalized()
	s := &Session{
		cfg:    cfg,
		seed:   sv.Seed,
		board:  b,
		engine: circuitEngine(cfg),
		rng:    rng.Restore(sv.RNGState, sv.RNGDraws),
		turn:   sv.Turn.clone(),
	}
	for _, p := range sv.Roster {
		s.roster = append(s.roster, p.Clone())
	}
	for _, p := range sv.Players {
		s.players = append(s.players, p.Clone())
	}
	return s, nil
}
