// Package game is the turn engine: one Session owns the board, the seated
// players, the turn cursor and the shared random stream.
//
// A Session is not safe for concurrent use. The match host drives it from a
// single goroutine and hands out copies from Snapshot.
package game

import (
	"fmt"
	"time"

	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/dice"
	"quantumparty.dev/internal/sim/player"
	"quantumparty.dev/internal/sim/policy"
	"quantumparty.dev/internal/sim/rng"
)

type Config struct {
	Turns            int
	StepDelay        time.Duration
	GainMin          int
	GainMax          int
	PercentPerMarker int
	// Start overrides the board's first declared space.
	Start string
}

func DefaultConfig() Config {
	return Config{
		Turns:            10,
		StepDelay:        400 * time.Millisecond,
		GainMin:          1,
		GainMax:          4,
		PercentPerMarker: circuit.DefaultPercentPerMarker,
	}
}

func circuitEngine(c Config) circuit.Engine {
	return circuit.Engine{PercentPerMarker: c.PercentPerMarker}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Turns <= 0 {
		c.Turns = d.Turns
	}
	if c.StepDelay < 0 {
		c.StepDelay = 0
	}
	if c.GainMin <= 0 {
		c.GainMin = d.GainMin
	}
	if c.GainMax < c.GainMin {
		c.GainMax = c.GainMin
	}
	if c.PercentPerMarker <= 0 {
		c.PercentPerMarker = d.PercentPerMarker
	}
	return c
}

type Session struct {
	cfg    Config
	seed   int64
	board  *board.Graph
	engine circuit.Engine
	rng    *rng.Stream

	roster  []player.Player // as registered, for Reset
	players []player.Player // turn order, fixed for the game
	turn    TurnState

	events []Event
}

// NewSession seats roster in turn order on b's start space. The same seed
// and the same inputs reproduce the same game.
func NewSession(b *board.Graph, roster []player.Player, cfg Config, seed int64) (*Session, error) {
	if len(roster) == 0 {
		return nil, ErrNoPlayers
	}
	cfg = cfg.normalized()
	if cfg.Start == "" {
		cfg.Start = b.Start()
	}
	if !b.Has(cfg.Start) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpace, cfg.Start)
	}
	s := &Session{
		cfg:    cfg,
		seed:   seed,
		board:  b,
		engine: circuitEngine(cfg),
		rng:    rng.New(seed),
	}
	s.roster = make([]player.Player, len(roster))
	for i := range roster {
		s.roster[i] = roster[i].Clone()
	}
	s.seat()
	return s, nil
}

func (s *Session) seat() {
	s.players = player.TurnOrder(s.roster)
	for i := range s.players {
		s.players[i].Position = s.cfg.Start
	}
	s.turn = TurnState{TurnsRemaining: s.cfg.Turns, State: StateIdle}
}

func (s *Session) Config() Config         { return s.cfg }
func (s *Session) Seed() int64            { return s.seed }
func (s *Session) State() State           { return s.turn.State }
func (s *Session) Turn() TurnState        { return s.turn.clone() }
func (s *Session) Engine() circuit.Engine { return s.engine }

// Board exposes the graph for read access. Callers on other goroutines must
// use Snapshot instead.
func (s *Session) Board() *board.Graph { return s.board }

// Players returns copies of the seated players in turn order.
func (s *Session) Players() []player.Player {
	out := make([]player.Player, len(s.players))
	for i := range s.players {
		out[i] = s.players[i].Clone()
	}
	return out
}

// Active returns the player whose turn it is.
func (s *Session) Active() player.Player { return s.players[s.turn.ActivePlayer].Clone() }

func (s *Session) Standings() []player.Standing { return player.Standings(s.players) }

// DrainEvents returns the events produced since the last call.
func (s *Session) DrainEvents() []Event {
	ev := s.events
	s.events = nil
	return ev
}

func (s *Session) emit(e Event) { s.events = append(s.events, e) }

// Roll samples one die. The first call moves Idle to Rolling, the second
// starts the move with the sum of both dice.
func (s *Session) Roll() (int, error) {
	switch s.turn.State {
	case StateIdle, StateRolling:
	default:
		return 0, fmt.Errorf("%w: roll in %s", ErrInvalidState, s.turn.State)
	}
	v := dice.RollDie(s.rng)
	s.turn.PendingDice = append(s.turn.PendingDice, v)
	active := s.players[s.turn.ActivePlayer].ID
	if s.turn.State == StateIdle {
		s.turn.State = StateRolling
		s.emit(Event{Kind: EventDiceRolled, Player: active, Dice: []int{v}})
		return v, nil
	}
	d1, d2 := s.turn.PendingDice[0], s.turn.PendingDice[1]
	s.turn.LastRoll = []int{d1, d2}
	s.turn.PendingDice = nil
	s.turn.StepsRemaining = dice.Steps(d1, d2)
	s.turn.StepTimer = 0
	s.turn.State = StateMoving
	s.emit(Event{Kind: EventDiceRolled, Player: active, Dice: []int{d1, d2}})
	return v, nil
}

// Tick advances time. While Moving, one step is taken each time the
// accumulated time reaches the step delay. Other states ignore ticks.
func (s *Session) Tick(dt time.Duration) {
	if s.turn.State != StateMoving {
		return
	}
	s.turn.StepTimer += dt
	if s.turn.StepTimer < s.cfg.StepDelay {
		return
	}
	s.turn.StepTimer = 0
	s.step()
}

func (s *Session) step() {
	p := &s.players[s.turn.ActivePlayer]
	succ := s.board.Successors(p.Position)
	switch len(succ) {
	case 0:
		s.endMove()
	case 1:
		s.advance(succ[0])
	default:
		s.turn.State = StateAwaitingBranchChoice
		s.turn.BranchOptions = succ
		s.emit(Event{Kind: EventBranchRequired, Player: p.ID, From: p.Position, Options: append([]string(nil), succ...)})
	}
}

// ChooseBranch resolves AwaitingBranchChoice with an index into the offered
// options.
func (s *Session) ChooseBranch(i int) error {
	if s.turn.State != StateAwaitingBranchChoice {
		return fmt.Errorf("%w: choose in %s", ErrInvalidState, s.turn.State)
	}
	opts := s.turn.BranchOptions
	if i < 0 || i >= len(opts) {
		return &InvalidBranchChoiceError{Index: i, Options: len(opts)}
	}
	to := opts[i]
	s.turn.BranchOptions = nil
	s.turn.State = StateMoving
	s.turn.StepTimer = 0
	s.advance(to)
	return nil
}

func (s *Session) advance(to string) {
	p := &s.players[s.turn.ActivePlayer]
	s.emit(Event{Kind: EventMoved, Player: p.ID, From: p.Position, To: to})
	p.Position = to
	if promoted, ok := s.board.CollectStar(p, to, s.rng); ok {
		s.emit(Event{Kind: EventStarCollected, Player: p.ID, To: to, Promoted: promoted})
	}
	s.turn.StepsRemaining--
	if s.turn.StepsRemaining <= 0 {
		s.endMove()
	}
}

func (s *Session) endMove() {
	p := &s.players[s.turn.ActivePlayer]
	if sp, ok := s.board.Space(p.Position); ok && sp.Kind == board.Gain {
		alphabet := circuit.Alphabet()
		n := s.cfg.GainMin + s.rng.IntN(s.cfg.GainMax-s.cfg.GainMin+1)
		awarded := make([]circuit.GateKind, 0, n)
		for i := 0; i < n; i++ {
			k := alphabet[s.rng.IntN(len(alphabet))]
			p.Inv.AddGates(k, 1)
			awarded = append(awarded, k)
		}
		s.emit(Event{Kind: EventGatesAwarded, Player: p.ID, To: p.Position, Gates: awarded})
	}
	s.emit(Event{Kind: EventMoveEnded, Player: p.ID, To: p.Position})

	s.turn.StepsRemaining = 0
	s.turn.BranchOptions = nil
	s.turn.StepTimer = 0
	s.turn.ActivePlayer = (s.turn.ActivePlayer + 1) % len(s.players)
	if s.turn.ActivePlayer != 0 {
		s.turn.State = StateIdle
		return
	}

	s.turn.TurnsRemaining--
	if s.turn.TurnsRemaining <= 0 {
		s.turn.State = StateGameOver
		s.emit(Event{Kind: EventGameOver, Standings: s.Standings()})
		return
	}
	s.turn.State = StateRoundEnd
	ids := make([]string, len(s.players))
	for i := range s.players {
		ids[i] = s.players[i].ID
	}
	s.emit(Event{Kind: EventStartGateRound, Players: ids, TurnsRemaining: s.turn.TurnsRemaining})
}

// ResolveGateRound finishes RoundEnd: the program is measured, the board is
// mutated for the outcome and the returned inventories replace the players'
// gate counters. Nothing changes when the result is rejected.
func (s *Session) ResolveGateRound(res GateRoundResult) (circuit.Outcome, error) {
	if s.turn.State != StateRoundEnd {
		return "", fmt.Errorf("%w: gate round result in %s", ErrInvalidState, s.turn.State)
	}
	for _, g := range res.Program.Gates {
		if err := g.Validate(); err != nil {
			return "", fmt.Errorf("gate round program: %w", err)
		}
	}
	idx := make(map[string]int, len(s.players))
	for i := range s.players {
		idx[s.players[i].ID] = i
	}
	for id, inv := range res.Inventories {
		if _, ok := idx[id]; !ok {
			return "", fmt.Errorf("gate round result names unknown player %q", id)
		}
		for k, n := range inv.Gates {
			if n < 0 || k.IsMarker() {
				return "", fmt.Errorf("gate round result: bad counter %s=%d for %q", k, n, id)
			}
		}
	}

	outcome := s.engine.Evaluate(res.Program, s.rng)
	tr := policy.Apply(s.board, outcome)
	for id, inv := range res.Inventories {
		p := &s.players[idx[id]]
		stars := p.Inv.Stars
		p.Inv = inv.Clone()
		p.Inv.Stars = stars
	}
	s.turn.Round++
	s.turn.State = StateIdle
	s.emit(Event{
		Kind:        EventMeasurementApplied,
		Outcome:     outcome,
		Transform:   tr,
		Decoherence: s.engine.DecoherencePercent(res.Program),
		Program:     res.Program.String(),
	})
	return outcome, nil
}

// Reset starts the game over: base edges, original space kinds, fresh
// players. The random stream keeps going.
func (s *Session) Reset() {
	s.board.Reset()
	s.board.RestoreSpaces()
	s.seat()
	s.events = nil
	s.emit(Event{Kind: EventReset})
}

// ResetTurns is Reset with a new game length. Non-positive turns keep the
// current length.
func (s *Session) ResetTurns(turns int) {
	if turns > 0 {
		s.cfg.Turns = turns
	}
	s.Reset()
}
