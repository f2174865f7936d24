package match

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"
	"time"

	"go.uber.org/goleak"

	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/player"
)

// drainRing is a cycle of Drain spaces, so moves never award gates.
func drainRing(t *testing.T, n int) *board.Graph {
	t.Helper()
	var spaces []board.Space
	var edges []board.Edge
	for i := 0; i < n; i++ {
		spaces = append(spaces, board.Space{ID: fmt.Sprintf("s%02d", i), Kind: board.Drain})
		edges = append(edges, board.Edge{From: fmt.Sprintf("s%02d", i), To: fmt.Sprintf("s%02d", (i+1)%n)})
	}
	g, err := board.Build(spaces, edges)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func newHost(t *testing.T, ids []string, turns int, seed int64) *Host {
	t.Helper()
	var roster []player.Player
	for i, id := range ids {
		roster = append(roster, player.Player{ID: id, Name: id, Slot: i, Inv: player.NewInventory(player.DefaultSeed())})
	}
	cfg := game.DefaultConfig()
	cfg.Turns = turns
	cfg.StepDelay = 50 * time.Millisecond
	s, err := game.NewSession(drainRing(t, 8), roster, cfg, seed)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	h, err := New(Config{GameID: "g1", MapName: "ring", TickRateHz: 20, SnapshotEveryRounds: 1, AllowedTurns: []int{10, 15, 20, 25}}, s)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	return h
}

func in(kind string) RecordedInput {
	return RecordedInput{Input: protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Input: kind}}
}

func step(t *testing.T, h *Host, inputs ...RecordedInput) []error {
	t.Helper()
	errs, _ := h.stepInternal(inputs)
	return errs
}

// playTurn rolls for the active player and ticks until the move ends.
func playTurn(t *testing.T, h *Host) {
	t.Helper()
	for _, err := range step(t, h, in(protocol.InputRoll), in(protocol.InputRoll)) {
		if err != nil {
			t.Fatalf("roll: %v", err)
		}
	}
	for i := 0; i < 50 && h.session.State() == game.StateMoving; i++ {
		step(t, h)
	}
	if h.session.State() == game.StateMoving {
		t.Fatalf("move did not finish")
	}
}

type recordSink struct {
	rounds []RoundRecord
	games  []GameRecord
}

func (r *recordSink) RecordRound(rec RoundRecord) { r.rounds = append(r.rounds, rec) }
func (r *recordSink) RecordGame(rec GameRecord)   { r.games = append(r.games, rec) }

func TestStepOnce_SameInputsSameDigests(t *testing.T) {
	a := newHost(t, []string{"P1", "P2"}, 10, 7)
	b := newHost(t, []string{"P1", "P2"}, 10, 7)
	script := [][]RecordedInput{
		{in(protocol.InputRoll)},
		{in(protocol.InputRoll)},
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
	}
	for i, inputs := range script {
		ta, da := a.StepOnce(inputs)
		tb, db := b.StepOnce(inputs)
		if ta != tb || da != db {
			t.Fatalf("tick %d diverged: %d/%s vs %d/%s", i, ta, da, tb, db)
		}
	}
	if a.CurrentTick() != uint64(len(script)) {
		t.Fatalf("tick=%d want %d", a.CurrentTick(), len(script))
	}
}

func TestApply_SeatBoundDeviceCannotActOutOfTurn(t *testing.T) {
	h := newHost(t, []string{"P1", "P2"}, 10, 1)
	r := in(protocol.InputRoll)
	r.Seat = "P2"
	errs := step(t, h, r)
	if got := CodeFor(errs[0]); got != protocol.ErrNotYourTurn {
		t.Fatalf("code=%q want %q", got, protocol.ErrNotYourTurn)
	}
	named := in(protocol.InputRoll)
	named.Input.Player = "P2"
	if got := CodeFor(step(t, h, named)[0]); got != protocol.ErrNotYourTurn {
		t.Fatalf("named player code=%q", got)
	}
	r.Seat = "P1"
	if err := step(t, h, r)[0]; err != nil {
		t.Fatalf("own seat roll: %v", err)
	}
}

func TestApply_ErrorCodes(t *testing.T) {
	h := newHost(t, []string{"P1"}, 10, 1)
	cases := []struct {
		name string
		in   RecordedInput
		code string
	}{
		{"choose while idle", func() RecordedInput {
			r := in(protocol.InputChoose)
			c := 0
			r.Input.Choice = &c
			return r
		}(), protocol.ErrInvalidState},
		{"choose without index", in(protocol.InputChoose), protocol.ErrBadRequest},
		{"place outside round", in(protocol.InputPlaceGate), protocol.ErrInvalidState},
		{"measure outside round", in(protocol.InputMeasure), protocol.ErrInvalidState},
		{"unknown input", in("DANCE"), protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeFor(step(t, h, tc.in)[0]); got != tc.code {
				t.Fatalf("code=%q want %q", got, tc.code)
			}
		})
	}
}

func TestGateRound_OpensPlacesAndMeasures(t *testing.T) {
	h := newHost(t, []string{"P1"}, 3, 11)
	sink := &recordSink{}
	snaps := make(chan snapshot.SnapshotV1, 4)
	h.SetResultSink(sink)
	h.SetSnapshotSink(snaps)

	playTurn(t, h)
	if h.session.State() != game.StateRoundEnd || h.Round() == nil {
		t.Fatalf("state=%s round=%v, want open gate round", h.session.State(), h.Round())
	}

	place := func(gate string, wires ...int) RecordedInput {
		r := in(protocol.InputPlaceGate)
		r.Input.Gate = gate
		r.Input.Wires = wires
		return r
	}
	errs := step(t, h, place("H", 0), place("X", 0), place("X", 1), place("BOGUS", 0))
	if CodeFor(errs[0]) != protocol.ErrNoResource {
		t.Fatalf("H with none held: %v", errs[0])
	}
	if errs[1] != nil {
		t.Fatalf("X: %v", errs[1])
	}
	if CodeFor(errs[2]) != protocol.ErrNoResource {
		t.Fatalf("second X: %v", errs[2])
	}
	if CodeFor(errs[3]) != protocol.ErrBadRequest {
		t.Fatalf("unknown gate: %v", errs[3])
	}
	if got := h.Round().Program().String(); got != "H(0) H(1) X(0)" {
		t.Fatalf("program=%q", got)
	}

	st := h.State(h.CurrentTick())
	if st.GateRound == nil || st.GateRound.Current != "P1" || len(st.GateRound.Probabilities) != 4 {
		t.Fatalf("gate round obs=%+v", st.GateRound)
	}

	if errs := step(t, h, in(protocol.InputSkip), in(protocol.InputMeasure)); errs[0] != nil || errs[1] != nil {
		t.Fatalf("skip/measure: %v", errs)
	}
	if h.Round() != nil || h.session.State() != game.StateIdle {
		t.Fatalf("after measure: state=%s round=%v", h.session.State(), h.Round())
	}
	inv := h.session.Players()[0].Inv
	if inv.Count(mustKind(t, "X")) != 0 {
		t.Fatalf("spent X not removed: %+v", inv.Gates)
	}
	if len(sink.rounds) != 1 || sink.rounds[0].Round != 1 || sink.rounds[0].Program != "H(0) H(1) X(0)" {
		t.Fatalf("rounds=%+v", sink.rounds)
	}
	select {
	case snap := <-snaps:
		if snap.Header.Final || snap.Header.Round != 1 || snap.Header.Tick != h.CurrentTick() {
			t.Fatalf("snapshot header=%+v tick=%d", snap.Header, h.CurrentTick())
		}
	default:
		t.Fatalf("no snapshot after measured round")
	}
}

func TestGameOver_RecordsStandingsAndFinalSnapshot(t *testing.T) {
	h := newHost(t, []string{"P1", "P2"}, 1, 3)
	sink := &recordSink{}
	snaps := make(chan snapshot.SnapshotV1, 4)
	h.SetResultSink(sink)
	h.SetSnapshotSink(snaps)

	playTurn(t, h)
	playTurn(t, h)
	if h.session.State() != game.StateGameOver {
		t.Fatalf("state=%s", h.session.State())
	}
	if len(sink.games) != 1 || len(sink.games[0].Standings) != 2 || sink.games[0].GameID != "g1" {
		t.Fatalf("games=%+v", sink.games)
	}
	snap := <-snaps
	if !snap.Header.Final {
		t.Fatalf("want final snapshot, got %+v", snap.Header)
	}
	if got := CodeFor(step(t, h, in(protocol.InputRoll))[0]); got != protocol.ErrInvalidState {
		t.Fatalf("roll after game over code=%q", got)
	}
}

func TestReset_ValidatesTurnsAndStartsNewGame(t *testing.T) {
	h := newHost(t, []string{"P1", "P2"}, 10, 5)
	playTurn(t, h)

	bad := in(protocol.InputReset)
	bad.Input.Turns = 12
	if got := CodeFor(step(t, h, bad)[0]); got != protocol.ErrBadRequest {
		t.Fatalf("turns 12 code=%q", got)
	}
	ok := in(protocol.InputReset)
	ok.Input.Turns = 15
	if err := step(t, h, ok)[0]; err != nil {
		t.Fatalf("reset: %v", err)
	}
	turn := h.session.Turn()
	if turn.TurnsRemaining != 15 || turn.ActivePlayer != 0 || turn.State != game.StateIdle {
		t.Fatalf("turn after reset=%+v", turn)
	}
	if h.GameID() == "g1" {
		t.Fatalf("game id not renewed")
	}
}

func TestResume_ContinuesWithSameDigests(t *testing.T) {
	h := newHost(t, []string{"P1", "P2"}, 10, 9)
	playTurn(t, h)
	snap := h.ExportSnapshot(h.CurrentTick(), false)

	r, err := Resume(Config{}, drainRing(t, 8), snap)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if r.CurrentTick() != h.CurrentTick() || r.GameID() != "g1" || r.TickRateHz() != 20 {
		t.Fatalf("resumed tick=%d id=%s hz=%d", r.CurrentTick(), r.GameID(), r.TickRateHz())
	}
	if !slices.Equal(r.cfg.AllowedTurns, []int{10, 15, 20, 25}) {
		t.Fatalf("resumed allowed turns=%v", r.cfg.AllowedTurns)
	}
	for i := 0; i < 20; i++ {
		var inputs []RecordedInput
		if i < 2 {
			inputs = []RecordedInput{in(protocol.InputRoll)}
		}
		t1, d1 := h.StepOnce(inputs)
		t2, d2 := r.StepOnce(inputs)
		if t1 != t2 || d1 != d2 {
			t.Fatalf("step %d diverged", i)
		}
	}
}

func TestRun_JoinInputAckAndState(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHost(t, []string{"P1", "P2"}, 10, 2)
	h.cfg.TickRateHz = 50
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	out := make(chan []byte, 64)
	resp := make(chan JoinResponse, 1)
	h.Join() <- JoinRequest{Hello: protocol.HelloMsg{Role: protocol.RoleInput, Seat: "P1"}, Out: out, Resp: resp}
	var welcome protocol.WelcomeMsg
	select {
	case r := <-resp:
		if r.Code != "" {
			t.Fatalf("join rejected: %s %s", r.Code, r.Message)
		}
		welcome = r.Welcome
	case <-time.After(2 * time.Second):
		t.Fatalf("no welcome")
	}
	if welcome.Seat != "P1" || len(welcome.Seats) != 2 || welcome.Params.TickRateHz != 50 {
		t.Fatalf("welcome=%+v", welcome)
	}

	h.Inbox() <- InputEnvelope{SessionID: welcome.SessionID, Input: protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 1, Input: protocol.InputRoll,
	}}

	sawState, sawAck := false, false
	deadline := time.After(2 * time.Second)
	for !sawState || !sawAck {
		select {
		case b := <-out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch base.Type {
			case protocol.TypeState:
				if err := protocol.Validate(b); err != nil {
					t.Fatalf("state schema: %v", err)
				}
				sawState = true
			case protocol.TypeAck:
				var ack protocol.AckMsg
				if err := json.Unmarshal(b, &ack); err != nil {
					t.Fatalf("ack: %v", err)
				}
				if ack.AckFor != 1 || !ack.Accepted {
					t.Fatalf("ack=%+v", ack)
				}
				sawAck = true
			}
		case <-deadline:
			t.Fatalf("state=%v ack=%v", sawState, sawAck)
		}
	}
}

func TestJoin_RejectsUnknownSeatAndReadOnlyInputs(t *testing.T) {
	h := newHost(t, []string{"P1"}, 10, 2)
	if r := h.joinClient(JoinRequest{Hello: protocol.HelloMsg{Role: protocol.RoleInput, Seat: "P9"}}); r.Code != protocol.ErrSeatUnknown {
		t.Fatalf("unknown seat code=%q", r.Code)
	}
	out := make(chan []byte, 8)
	r := h.joinClient(JoinRequest{SessionID: "d1", Hello: protocol.HelloMsg{Role: protocol.RoleDisplay}, Out: out})
	if r.Code != "" {
		t.Fatalf("display join: %s", r.Code)
	}
	h.step(nil, nil, []InputEnvelope{{SessionID: "d1", Input: protocol.InputMsg{Seq: 4, Input: protocol.InputRoll}}})
	var ack protocol.AckMsg
	if err := json.Unmarshal(<-out, &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrReadOnly || ack.AckFor != 4 {
		t.Fatalf("ack=%+v", ack)
	}
	if h.session.State() != game.StateIdle {
		t.Fatalf("display input was applied")
	}
}

func mustKind(t *testing.T, s string) circuit.GateKind {
	t.Helper()
	k, err := circuit.ParseGateKind(s)
	if err != nil {
		t.Fatalf("gate %q: %v", s, err)
	}
	return k
}

func TestObservers_ThinnedTicksAndInputs(t *testing.T) {
	h := newHost(t, []string{"P1", "P2"}, 10, 2)
	thin := make(chan []byte, 1)
	full := make(chan []byte, 1)
	h.handleObserverJoin(ObserverJoinRequest{SessionID: "o1", Out: thin, EveryTicks: 4})
	h.handleObserverJoin(ObserverJoinRequest{SessionID: "o2", Out: full, EveryTicks: 4, IncludeInputs: true})

	if info := h.Info(); info.GameID != "g1" || len(info.Spaces) != 8 || len(info.BaseEdges) != 8 || len(info.Seats) != 2 {
		t.Fatalf("info=%+v", info)
	}

	// Tick 0 is a multiple of 4 so both observers get it.
	h.step(nil, nil, nil)
	for _, ch := range []chan []byte{thin, full} {
		select {
		case <-ch:
		default:
			t.Fatalf("tick 0 not delivered")
		}
	}
	// Idle tick 1 is thinned away.
	h.step(nil, nil, nil)
	if len(thin) != 0 || len(full) != 0 {
		t.Fatalf("idle tick delivered")
	}

	// A tick with inputs always goes out; only o2 sees the inputs.
	_, digest := h.stepInternal([]RecordedInput{in(protocol.InputRoll)})
	h.stepObservers(2, []RecordedInput{in(protocol.InputRoll)}, digest)
	var a, b observerTick
	if err := json.Unmarshal(<-thin, &a); err != nil {
		t.Fatalf("thin: %v", err)
	}
	if err := json.Unmarshal(<-full, &b); err != nil {
		t.Fatalf("full: %v", err)
	}
	if len(a.Inputs) != 0 || len(b.Inputs) != 1 || b.Digest != digest || b.GameID != "g1" {
		t.Fatalf("thin=%+v full=%+v", a, b)
	}

	h.handleObserverLeave("o1")
	h.handleObserverLeave("o2")
	if len(h.observers) != 0 {
		t.Fatalf("observers=%d", len(h.observers))
	}
}

type observerTick struct {
	Type   string            `json:"type"`
	GameID string            `json:"game_id"`
	Digest string            `json:"digest"`
	Inputs []json.RawMessage `json:"inputs"`
}

func TestReset_RefreshesTableInfo(t *testing.T) {
	h := newHost(t, []string{"P1"}, 10, 2)
	reset := in(protocol.InputReset)
	reset.Input.Turns = 15
	if errs := step(t, h, reset); errs[0] != nil {
		t.Fatalf("reset: %v", errs[0])
	}
	info := h.Info()
	if info.GameID == "g1" || info.GameID != h.GameID() || info.Params.Turns != 15 {
		t.Fatalf("info=%+v game=%s", info, h.GameID())
	}
}
