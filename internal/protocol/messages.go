package protocol

// Client roles. An input device may act for the active player (or for the
// one seat it is bound to); a display only receives STATE.
const (
	RoleInput   = "input"
	RoleDisplay = "display"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Role            string `json:"role"`
	Seat            string `json:"seat,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	GameID          string     `json:"game_id"`
	Role            string     `json:"role"`
	Seat            string     `json:"seat,omitempty"`
	Params          GameParams `json:"params"`
	Seats           []SeatRef  `json:"seats"`
}

type GameParams struct {
	TickRateHz       int    `json:"tick_rate_hz"`
	StepDelayMs      int    `json:"step_delay_ms"`
	Turns            int    `json:"turns"`
	Seed             int64  `json:"seed"`
	Map              string `json:"map"`
	PercentPerMarker int    `json:"percent_per_marker"`
	MarkerEvery      int    `json:"marker_every"`
	MaxGates         int    `json:"max_gates"`
}

type SeatRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ACK (server -> client): result of one INPUT.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          uint64 `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
