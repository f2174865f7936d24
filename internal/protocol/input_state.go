package protocol

// Input kinds carried by INPUT.
const (
	InputRoll      = "ROLL"
	InputChoose    = "CHOOSE"
	InputPlaceGate = "PLACE_GATE"
	InputSkip      = "SKIP"
	InputMeasure   = "MEASURE"
	InputReset     = "RESET"
)

// INPUT (client -> server)
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Input           string `json:"input"`

	// Player, when set, must be the player whose turn it is.
	Player string `json:"player,omitempty"`

	Choice *int   `json:"choice,omitempty"`
	Gate   string `json:"gate,omitempty"`
	Wires  []int  `json:"wires,omitempty"`
	Turns  int    `json:"turns,omitempty"`
}

type Event map[string]interface{}

// STATE (server -> client)
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	GameID          string `json:"game_id"`

	Board     BoardObs      `json:"board"`
	Players   []PlayerObs   `json:"players"`
	Turn      TurnObs       `json:"turn"`
	GateRound *GateRoundObs `json:"gate_round,omitempty"`
	Standings []StandingObs `json:"standings,omitempty"`
	Events    []Event       `json:"events"`
}

type BoardObs struct {
	Spaces    []SpaceObs  `json:"spaces"`
	Edges     [][2]string `json:"edges"`
	Transform string      `json:"transform"`
}

type SpaceObs struct {
	ID    string      `json:"id"`
	Kind  string      `json:"kind"`
	Value *int        `json:"value,omitempty"`
	Pos   *[2]float64 `json:"pos,omitempty"`
}

type PlayerObs struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position string         `json:"position"`
	Stars    int            `json:"stars"`
	Gates    map[string]int `json:"gates"`
}

type TurnObs struct {
	State          string   `json:"state"`
	Active         string   `json:"active"`
	TurnsRemaining int      `json:"turns_remaining"`
	StepsRemaining int      `json:"steps_remaining"`
	Round          int      `json:"round"`
	BranchOptions  []string `json:"branch_options,omitempty"`
	PendingDice    []int    `json:"pending_dice,omitempty"`
	LastRoll       []int    `json:"last_roll,omitempty"`
}

type GateRoundObs struct {
	Current       string                    `json:"current,omitempty"`
	Program       []string                  `json:"program"`
	Decoherence   int                       `json:"decoherence"`
	Probabilities map[string]float64        `json:"probabilities"`
	Inventories   map[string]map[string]int `json:"inventories"`
}

type StandingObs struct {
	Rank  int    `json:"rank"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stars int    `json:"stars"`
	Gates int    `json:"gates"`
}
