// Package match hosts one table: a single goroutine owns the game session
// and the open gate round, applies client inputs at tick boundaries and
// publishes STATE to attached clients.
package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/gateround"
)

// Host is a single-threaded authoritative table. All session state must be
// accessed only from the loop goroutine.
type Host struct {
	cfg     Config
	session *game.Session
	round   *gateround.Round

	tick   atomic.Uint64
	gameID atomic.Value // string
	info   atomic.Pointer[TableInfo]

	clients   map[string]*clientState
	observers map[string]*observerClient

	inbox         chan InputEnvelope
	join          chan JoinRequest
	leave         chan string
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	stop          chan struct{}
	stopOnce      sync.Once

	tickLogger   TickLogger
	results      ResultSink
	snapshotSink chan<- snapshot.SnapshotV1
	metrics      *Metrics
	logger       *log.Logger

	// Per-tick scratch, reset by stepInternal.
	tickEvents []game.Event
	wantSnap   bool
	wantFinal  bool
	sinceSnap  int
}

// New hosts s. cfg.GameID defaults to a fresh UUID.
func New(cfg Config, s *game.Session) (*Host, error) {
	if s == nil {
		return nil, errors.New("match: nil session")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("match: tick rate must be > 0, got %d", cfg.TickRateHz)
	}
	if cfg.GameID == "" {
		cfg.GameID = uuid.NewString()
	}
	def := gateround.DefaultConfig()
	if cfg.Round.MarkerEvery <= 0 {
		cfg.Round.MarkerEvery = def.MarkerEvery
	}
	if cfg.Round.MaxGates <= 0 {
		cfg.Round.MaxGates = def.MaxGates
	}
	h := &Host{
		cfg:           cfg,
		session:       s,
		clients:       map[string]*clientState{},
		observers:     map[string]*observerClient{},
		inbox:         make(chan InputEnvelope, 256),
		join:          make(chan JoinRequest, 16),
		leave:         make(chan string, 16),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
		logger:        log.New(log.Writer(), "[match] ", log.LstdFlags|log.Lmicroseconds),
	}
	h.gameID.Store(cfg.GameID)
	h.refreshInfo()
	if s.State() == game.StateRoundEnd {
		h.round = gateround.New(s.Players(), cfg.Round)
	}
	return h, nil
}

// Resume rebuilds a host from a snapshot. b must be a fresh build of the map
// the snapshot was taken on. The next tick simulated is Header.Tick.
func Resume(cfg Config, b *board.Graph, snap snapshot.SnapshotV1) (*Host, error) {
	s, err := game.Import(b, snap.Session)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if cfg.GameID == "" {
		cfg.GameID = snap.Header.GameID
	}
	if cfg.MapName == "" {
		cfg.MapName = snap.Map
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = snap.TickRateHz
	}
	if cfg.Round.MarkerEvery <= 0 {
		cfg.Round.MarkerEvery = snap.MarkerEvery
	}
	if cfg.Round.MaxGates <= 0 {
		cfg.Round.MaxGates = snap.MaxGates
	}
	if len(cfg.AllowedTurns) == 0 {
		cfg.AllowedTurns = slices.Clone(snap.AllowedTurns)
	}
	h, err := New(cfg, s)
	if err != nil {
		return nil, err
	}
	h.tick.Store(snap.Header.Tick)
	return h, nil
}

func (h *Host) SetTickLogger(l TickLogger)                    { h.tickLogger = l }
func (h *Host) SetResultSink(r ResultSink)                    { h.results = r }
func (h *Host) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { h.snapshotSink = ch }
func (h *Host) SetMetrics(m *Metrics)                         { h.metrics = m }
func (h *Host) SetLogger(l *log.Logger) {
	if l != nil {
		h.logger = l
	}
}

func (h *Host) Inbox() chan<- InputEnvelope { return h.inbox }
func (h *Host) Join() chan<- JoinRequest    { return h.join }
func (h *Host) Leave() chan<- string        { return h.leave }

func (h *Host) CurrentTick() uint64 { return h.tick.Load() }
func (h *Host) GameID() string      { return h.gameID.Load().(string) }
func (h *Host) TickRateHz() int     { return h.cfg.TickRateHz }

// Session exposes the hosted session. Only safe before Run or from tests
// driving StepOnce.
func (h *Host) Session() *game.Session { return h.session }

// Round is the open gate round, or nil.
func (h *Host) Round() *gateround.Round { return h.round }

func (h *Host) dt() time.Duration { return time.Second / time.Duration(h.cfg.TickRateHz) }

func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.dt())
	defer ticker.Stop()

	var pendingInputs []InputEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case req := <-h.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-h.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-h.observerJoin:
			h.handleObserverJoin(req)
		case id := <-h.observerLeave:
			h.handleObserverLeave(id)
		case env := <-h.inbox:
			pendingInputs = append(pendingInputs, env)
		case <-ticker.C:
			h.step(pendingJoins, pendingLeaves, pendingInputs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
		}
	}
}

func (h *Host) Stop() { h.stopOnce.Do(func() { close(h.stop) }) }

// StepOnce advances the table by a single tick using the same ordering
// semantics as the server. It is intended for deterministic replays and
// tests.
func (h *Host) StepOnce(inputs []RecordedInput) (tick uint64, digest string) {
	tick = h.tick.Load()
	_, digest = h.stepInternal(inputs)
	return tick, digest
}

func (h *Host) step(joins []JoinRequest, leaves []string, inputs []InputEnvelope) {
	for _, id := range leaves {
		delete(h.clients, id)
	}
	for _, req := range joins {
		resp := h.joinClient(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}
	h.metrics.setClients(len(h.clients))

	now := h.tick.Load()
	recorded := make([]RecordedInput, 0, len(inputs))
	owners := make([]*clientState, 0, len(inputs))
	for _, env := range inputs {
		cl := h.clients[env.SessionID]
		if cl == nil {
			continue
		}
		if cl.Role != protocol.RoleInput {
			h.sendAck(cl, env.Input.Seq, now, protocol.ErrReadOnly, "display clients cannot send inputs")
			h.metrics.observeInput(env.Input.Input, protocol.ErrReadOnly)
			continue
		}
		recorded = append(recorded, RecordedInput{Seat: cl.Seat, Input: env.Input})
		owners = append(owners, cl)
	}

	errs, digest := h.stepInternal(recorded)

	for i, cl := range owners {
		code, msg := "", ""
		if errs[i] != nil {
			code, msg = CodeFor(errs[i]), errs[i].Error()
		}
		h.sendAck(cl, recorded[i].Input.Seq, now, code, msg)
	}
	h.publish(now)
	h.stepObservers(now, recorded, digest)
}

// stepInternal applies inputs in receive order, advances the session by one
// tick and emits the journal entry. It returns one error per input.
func (h *Host) stepInternal(inputs []RecordedInput) ([]error, string) {
	start := time.Now()
	now := h.tick.Load()
	h.tickEvents = h.tickEvents[:0]

	errs := make([]error, len(inputs))
	for i, in := range inputs {
		errs[i] = h.apply(in)
		h.collect(now)
		h.metrics.observeInput(in.Input.Input, codeOrEmpty(errs[i]))
	}

	h.session.Tick(h.dt())
	h.collect(now)

	digest := h.digest()
	if h.tickLogger != nil {
		if err := h.tickLogger.WriteTick(TickLogEntry{Tick: now, GameID: h.GameID(), Inputs: inputs, Digest: digest}); err != nil {
			h.logger.Printf("tick log: %v", err)
		}
	}
	h.maybeSnapshot(now)

	h.tick.Add(1)
	h.metrics.observeTick(time.Since(start))
	return errs, digest
}

func codeOrEmpty(err error) string {
	if err == nil {
		return ""
	}
	return CodeFor(err)
}

// collect drains session events and reacts to the phase changes among them.
func (h *Host) collect(now uint64) {
	for _, ev := range h.session.DrainEvents() {
		h.tickEvents = append(h.tickEvents, ev)
		switch ev.Kind {
		case game.EventStartGateRound:
			h.round = gateround.New(h.session.Players(), h.cfg.Round)
		case game.EventMeasurementApplied:
			h.round = nil
			rec := RoundRecord{
				GameID:      h.GameID(),
				Round:       h.session.Turn().Round,
				Tick:        now,
				Program:     ev.Program,
				Outcome:     string(ev.Outcome),
				Transform:   string(ev.Transform),
				Decoherence: ev.Decoherence,
			}
			h.metrics.observeRound(rec.Outcome, rec.Decoherence)
			if h.results != nil {
				h.results.RecordRound(rec)
			}
			h.sinceSnap++
			if h.cfg.SnapshotEveryRounds > 0 && h.sinceSnap >= h.cfg.SnapshotEveryRounds {
				h.wantSnap = true
			}
		case game.EventGameOver:
			h.round = nil
			h.metrics.observeGame()
			if h.results != nil {
				h.results.RecordGame(GameRecord{
					GameID:    h.GameID(),
					Map:       h.cfg.MapName,
					Seed:      h.session.Seed(),
					EndTick:   now,
					Rounds:    h.session.Turn().Round,
					Standings: ev.Standings,
				})
			}
			h.wantFinal = true
		case game.EventReset:
			h.round = nil
			h.sinceSnap = 0
			h.wantSnap, h.wantFinal = false, false
		}
	}
}

// maybeSnapshot sends a snapshot when one is due and no gate round is open.
// Sends never block; a backed up sink drops it.
func (h *Host) maybeSnapshot(now uint64) {
	if !h.wantSnap && !h.wantFinal {
		return
	}
	if h.round != nil {
		return
	}
	final := h.wantFinal
	h.wantSnap, h.wantFinal = false, false
	h.sinceSnap = 0
	if h.snapshotSink == nil {
		return
	}
	snap := h.ExportSnapshot(now+1, final)
	select {
	case h.snapshotSink <- snap:
	default:
		h.logger.Printf("snapshot sink backed up; dropped snapshot at tick %d", now+1)
	}
}

// ExportSnapshot captures the table. tick is the number of ticks executed.
func (h *Host) ExportSnapshot(tick uint64, final bool) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			GameID:  h.GameID(),
			Tick:    tick,
			Round:   h.session.Turn().Round,
			Final:   final,
		},
		Map:          h.cfg.MapName,
		TickRateHz:   h.cfg.TickRateHz,
		MarkerEvery:  h.cfg.Round.MarkerEvery,
		MaxGates:     h.cfg.Round.MaxGates,
		AllowedTurns: slices.Clone(h.cfg.AllowedTurns),
		Session:      h.session.Export(),
	}
}

func (h *Host) joinClient(req JoinRequest) JoinResponse {
	hello := req.Hello
	role := hello.Role
	if role == "" {
		role = protocol.RoleInput
	}
	if role != protocol.RoleInput && role != protocol.RoleDisplay {
		return JoinResponse{Code: protocol.ErrProtoBadRequest, Message: fmt.Sprintf("unknown role %q", role)}
	}
	seats := make([]protocol.SeatRef, 0)
	for _, p := range h.session.Players() {
		seats = append(seats, protocol.SeatRef{ID: p.ID, Name: p.Name})
	}
	if hello.Seat != "" {
		if role != protocol.RoleInput {
			return JoinResponse{Code: protocol.ErrProtoBadRequest, Message: "only input clients bind a seat"}
		}
		if !slices.ContainsFunc(seats, func(s protocol.SeatRef) bool { return s.ID == hello.Seat }) {
			return JoinResponse{Code: protocol.ErrSeatUnknown, Message: fmt.Sprintf("no seat %q", hello.Seat)}
		}
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	h.clients[id] = &clientState{SessionID: id, Role: role, Seat: hello.Seat, Out: req.Out}

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       id,
		GameID:          h.GameID(),
		Role:            role,
		Seat:            hello.Seat,
		Params:          h.params(),
		Seats:           seats,
	}}
}

func (h *Host) params() protocol.GameParams {
	cfg := h.session.Config()
	return protocol.GameParams{
		TickRateHz:       h.cfg.TickRateHz,
		StepDelayMs:      int(cfg.StepDelay / time.Millisecond),
		Turns:            cfg.Turns,
		Seed:             h.session.Seed(),
		Map:              h.cfg.MapName,
		PercentPerMarker: cfg.PercentPerMarker,
		MarkerEvery:      h.cfg.Round.MarkerEvery,
		MaxGates:         h.cfg.Round.MaxGates,
	}
}

func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
