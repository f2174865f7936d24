package game

import (
	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/player"
)

type EventKind string

const (
	EventDiceRolled         EventKind = "DICE_ROLLED"
	EventMoved              EventKind = "MOVED"
	EventBranchRequired     EventKind = "BRANCH_REQUIRED"
	EventStarCollected      EventKind = "STAR_COLLECTED"
	EventGatesAwarded       EventKind = "GATES_AWARDED"
	EventMoveEnded          EventKind = "MOVE_ENDED"
	EventStartGateRound     EventKind = "START_GATE_ROUND"
	EventMeasurementApplied EventKind = "MEASUREMENT_APPLIED"
	EventGameOver           EventKind = "GAME_OVER"
	EventReset              EventKind = "RESET"
)

// Event is a notification produced while the session advances. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind   EventKind `json:"kind"`
	Player string    `json:"player,omitempty"`

	Dice     []int    `json:"dice,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Options  []string `json:"options,omitempty"`
	Promoted string   `json:"promoted,omitempty"`

	Gates []circuit.GateKind `json:"gates,omitempty"`

	// StartGateRound: seating order and turns left.
	Players        []string `json:"players,omitempty"`
	TurnsRemaining int      `json:"turns_remaining,omitempty"`

	Outcome     circuit.Outcome `json:"outcome,omitempty"`
	Transform   board.Transform `json:"transform,omitempty"`
	Decoherence int             `json:"decoherence,omitempty"`
	Program     string          `json:"program,omitempty"`

	Standings []player.Standing `json:"standings,omitempty"`
}

// GateRoundResult is what the gate-authoring collaborator hands back: the
// finished program and each participant's inventory after spending.
type GateRoundResult struct {
	Program     circuit.Program             `json:"program"`
	Inventories map[string]player.Inventory `json:"inventories"`
}
