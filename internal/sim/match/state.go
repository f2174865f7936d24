package match

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/game"
)

// digest extends the session digest with the open gate round, if any.
func (h *Host) digest() string {
	base := h.session.Digest()
	if h.round == nil {
		return base
	}
	cur, _ := h.round.Current()
	b, err := json.Marshal(struct {
		Session string               `json:"session"`
		Current string               `json:"current"`
		Round   game.GateRoundResult `json:"round"`
	}{base, cur, h.round.Result()})
	if err != nil {
		return base
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// State builds the STATE message for tick from the session as it stands.
func (h *Host) State(tick uint64) protocol.StateMsg {
	v := h.session.Snapshot()
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		GameID:          h.GameID(),
		Board:           boardObs(v),
		Turn: protocol.TurnObs{
			State:          v.Turn.State.String(),
			Active:         v.Active,
			TurnsRemaining: v.Turn.TurnsRemaining,
			StepsRemaining: v.Turn.StepsRemaining,
			Round:          v.Turn.Round,
			BranchOptions:  v.Turn.BranchOptions,
			PendingDice:    v.Turn.PendingDice,
			LastRoll:       v.Turn.LastRoll,
		},
		Events: make([]protocol.Event, 0, len(h.tickEvents)),
	}
	for _, p := range v.Players {
		msg.Players = append(msg.Players, protocol.PlayerObs{
			ID:       p.ID,
			Name:     p.Name,
			Position: p.Position,
			Stars:    p.Stars,
			Gates:    p.Gates,
		})
	}
	for _, s := range h.session.Standings() {
		msg.Standings = append(msg.Standings, protocol.StandingObs{
			Rank: s.Rank, ID: s.ID, Name: s.Name, Stars: s.Stars, Gates: s.Gates,
		})
	}
	if h.round != nil {
		msg.GateRound = h.roundObs()
	}
	for _, ev := range h.tickEvents {
		msg.Events = append(msg.Events, eventObs(ev))
	}
	return msg
}

func boardObs(v game.View) protocol.BoardObs {
	out := protocol.BoardObs{
		Spaces:    make([]protocol.SpaceObs, 0, len(v.Spaces)),
		Edges:     make([][2]string, 0, len(v.Edges)),
		Transform: string(v.Transform),
	}
	for _, s := range v.Spaces {
		out.Spaces = append(out.Spaces, spaceObs(s))
	}
	for _, e := range v.Edges {
		out.Edges = append(out.Edges, [2]string{e.From, e.To})
	}
	return out
}

func spaceObs(s board.Space) protocol.SpaceObs {
	o := protocol.SpaceObs{ID: s.ID, Kind: s.Kind.String(), Value: s.Value}
	if s.Pos != nil {
		o.Pos = &[2]float64{s.Pos.X, s.Pos.Y}
	}
	return o
}

func (h *Host) roundObs() *protocol.GateRoundObs {
	engine := h.session.Engine()
	prog := h.round.Program()
	cur, _ := h.round.Current()
	obs := &protocol.GateRoundObs{
		Current:       cur,
		Program:       make([]string, 0, len(prog.Gates)),
		Decoherence:   engine.DecoherencePercent(prog),
		Probabilities: map[string]float64{},
		Inventories:   map[string]map[string]int{},
	}
	for _, g := range prog.Gates {
		obs.Program = append(obs.Program, g.String())
	}
	for o, p := range h.round.Preview(engine).Map() {
		obs.Probabilities[string(o)] = p
	}
	for id, inv := range h.round.Result().Inventories {
		obs.Inventories[id] = inv.Counts()
	}
	return obs
}

// eventObs flattens an event to the loose wire map.
func eventObs(ev game.Event) protocol.Event {
	b, err := json.Marshal(ev)
	if err != nil {
		return protocol.Event{"kind": string(ev.Kind)}
	}
	out := protocol.Event{}
	if err := json.Unmarshal(b, &out); err != nil {
		return protocol.Event{"kind": string(ev.Kind)}
	}
	return out
}

func (h *Host) publish(tick uint64) {
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(h.State(tick))
	if err != nil {
		h.logger.Printf("state marshal: %v", err)
		return
	}
	for _, cl := range h.clients {
		sendLatest(cl.Out, b)
	}
}

func (h *Host) sendAck(cl *clientState, seq, tick uint64, code, message string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          seq,
		Accepted:        code == "",
		Code:            code,
		Message:         message,
		ServerTick:      tick,
	})
	if err != nil {
		return
	}
	sendLatest(cl.Out, b)
}
