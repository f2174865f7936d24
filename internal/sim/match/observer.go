package match

import (
	"encoding/json"

	"quantumparty.dev/internal/observerproto"
	"quantumparty.dev/internal/protocol"
)

type ObserverJoinRequest struct {
	SessionID     string
	Out           chan []byte
	EveryTicks    int
	IncludeInputs bool
}

type observerClient struct {
	out           chan []byte
	everyTicks    int
	includeInputs bool
}

// TableInfo is the static part of the table that spectators bootstrap from.
// It is replaced on RESET and safe to read from any goroutine.
type TableInfo struct {
	GameID    string
	Params    protocol.GameParams
	Spaces    []protocol.SpaceObs
	BaseEdges [][2]string
	Seats     []protocol.SeatRef
}

func (h *Host) ObserverJoin() chan<- ObserverJoinRequest { return h.observerJoin }
func (h *Host) ObserverLeave() chan<- string             { return h.observerLeave }

// Info returns the current table info.
func (h *Host) Info() TableInfo { return *h.info.Load() }

func (h *Host) refreshInfo() {
	info := &TableInfo{
		GameID: h.GameID(),
		Params: h.params(),
	}
	b := h.session.Board()
	for _, s := range b.Spaces() {
		info.Spaces = append(info.Spaces, spaceObs(s))
	}
	for _, e := range b.BaseEdges() {
		info.BaseEdges = append(info.BaseEdges, [2]string{e.From, e.To})
	}
	for _, p := range h.session.Players() {
		info.Seats = append(info.Seats, protocol.SeatRef{ID: p.ID, Name: p.Name})
	}
	h.info.Store(info)
}

func (h *Host) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	every := req.EveryTicks
	if every <= 0 {
		every = 1
	}
	h.observers[req.SessionID] = &observerClient{out: req.Out, everyTicks: every, includeInputs: req.IncludeInputs}
}

func (h *Host) handleObserverLeave(id string) { delete(h.observers, id) }

// stepObservers sends this tick to spectators that asked for it.
func (h *Host) stepObservers(now uint64, inputs []RecordedInput, digest string) {
	if len(h.observers) == 0 {
		return
	}
	busy := len(inputs) > 0 || len(h.tickEvents) > 0
	var bare, full []byte
	for _, o := range h.observers {
		if !busy && now%uint64(o.everyTicks) != 0 {
			continue
		}
		if o.includeInputs {
			if full == nil {
				full = h.marshalTick(now, inputs, digest)
			}
			sendLatest(o.out, full)
			continue
		}
		if bare == nil {
			bare = h.marshalTick(now, nil, digest)
		}
		sendLatest(o.out, bare)
	}
}

func (h *Host) marshalTick(now uint64, inputs []RecordedInput, digest string) []byte {
	v := h.session.Snapshot()
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            now,
		GameID:          h.GameID(),
		Digest:          digest,
		State:           v.Turn.State.String(),
		Active:          v.Active,
		TurnsRemaining:  v.Turn.TurnsRemaining,
		Round:           v.Turn.Round,
		Transform:       string(v.Transform),
		Positions:       make(map[string]string, len(v.Players)),
		Stars:           make(map[string]int, len(v.Players)),
	}
	for _, p := range v.Players {
		msg.Positions[p.ID] = p.Position
		msg.Stars[p.ID] = p.Stars
	}
	if h.round != nil {
		msg.GateRound = h.roundObs()
	}
	for _, in := range inputs {
		msg.Inputs = append(msg.Inputs, observerproto.RecordedInput{Seat: in.Seat, Input: in.Input})
	}
	for _, ev := range h.tickEvents {
		msg.Events = append(msg.Events, eventObs(ev))
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("observer tick marshal: %v", err)
		return nil
	}
	return b
}
