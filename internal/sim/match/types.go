package match

import (
	"quantumparty.dev/internal/persistence/snapshot"
	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/gateround"
	"quantumparty.dev/internal/sim/player"
)

type Config struct {
	GameID     string
	MapName    string
	TickRateHz int
	Seed       int64
	Round      gateround.Config
	// SnapshotEveryRounds emits a snapshot after every n resolved gate
	// rounds. Zero disables periodic snapshots; the final one is always sent.
	SnapshotEveryRounds int
	// AllowedTurns restricts RESET game lengths. Empty allows any positive
	// length.
	AllowedTurns []int
}

// JoinRequest attaches a client to the table. The reply arrives on Resp.
type JoinRequest struct {
	SessionID string
	Hello     protocol.HelloMsg
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

type InputEnvelope struct {
	SessionID string
	Input     protocol.InputMsg
}

// RecordedInput is one input as journaled: the seat the sending device was
// bound to (if any) and the message.
type RecordedInput struct {
	Seat  string            `json:"seat,omitempty"`
	Input protocol.InputMsg `json:"input"`
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	GameID string          `json:"game_id"`
	Inputs []RecordedInput `json:"inputs,omitempty"`
	Digest string          `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// ResultSink receives per-round and per-game results. Implementations must
// not block the match loop.
type ResultSink interface {
	RecordRound(r RoundRecord)
	RecordGame(g GameRecord)
}

type RoundRecord struct {
	GameID      string `json:"game_id"`
	Round       int    `json:"round"`
	Tick        uint64 `json:"tick"`
	Program     string `json:"program"`
	Outcome     string `json:"outcome"`
	Transform   string `json:"transform"`
	Decoherence int    `json:"decoherence"`
}

type GameRecord struct {
	GameID    string            `json:"game_id"`
	Map       string            `json:"map"`
	Seed      int64             `json:"seed"`
	EndTick   uint64            `json:"end_tick"`
	Rounds    int               `json:"rounds"`
	Standings []player.Standing `json:"standings"`
}

// SnapshotSink receives snapshots off the match loop. Sends never block; a
// full sink drops the snapshot.
type SnapshotSink chan<- snapshot.SnapshotV1

type clientState struct {
	SessionID string
	Role      string
	Seat      string
	Out       chan []byte
}
