// Package observerproto is the read-only spectator protocol. It is separate
// from the table protocol and versioned on its own.
package observerproto

import "quantumparty.dev/internal/protocol"

const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection; it can be
// re-sent to change settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the stream to one TICK per n ticks. Ticks that carry
	// inputs or events are always sent.
	EveryTicks    int  `json:"every_ticks,omitempty"`
	IncludeInputs bool `json:"include_inputs,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string              `json:"protocol_version"`
	GameID          string              `json:"game_id"`
	Tick            uint64              `json:"tick"`
	Params          protocol.GameParams `json:"params"`
	Spaces          []protocol.SpaceObs `json:"spaces"`
	BaseEdges       [][2]string         `json:"base_edges"`
	Seats           []protocol.SeatRef  `json:"seats"`
}

// Server -> Client.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	GameID          string `json:"game_id"`
	Digest          string `json:"digest"`

	State          string            `json:"state"`
	Active         string            `json:"active"`
	TurnsRemaining int               `json:"turns_remaining"`
	Round          int               `json:"round"`
	Transform      string            `json:"transform"`
	Positions      map[string]string `json:"positions"`
	Stars          map[string]int    `json:"stars"`

	GateRound *protocol.GateRoundObs `json:"gate_round,omitempty"`
	Inputs    []RecordedInput        `json:"inputs,omitempty"`
	Events    []protocol.Event       `json:"events,omitempty"`
}

type RecordedInput struct {
	Seat  string            `json:"seat,omitempty"`
	Input protocol.InputMsg `json:"input"`
}
