package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateRolling
	StateMoving
	StateAwaitingBranchChoice
	StateRoundEnd
	StateGameOver
)

var stateNames = [...]string{
	StateIdle:                 "IDLE",
	StateRolling:              "ROLLING",
	StateMoving:               "MOVING",
	StateAwaitingBranchChoice: "AWAITING_BRANCH_CHOICE",
	StateRoundEnd:             "ROUND_END",
	StateGameOver:             "GAME_OVER",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE_%d", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	want := strings.ToUpper(string(b))
	for i, name := range stateNames {
		if name == want {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

var (
	// ErrInvalidState is returned for an input the current state does not accept.
	ErrInvalidState = errors.New("input not valid in current state")
	ErrNoPlayers    = errors.New("no players")
	ErrUnknownSpace = errors.New("unknown start space")
)

// InvalidBranchChoiceError reports a branch index outside the offered options.
// The session stays in AwaitingBranchChoice.
type InvalidBranchChoiceError struct {
	Index   int
	Options int
}

func (e *InvalidBranchChoiceError) Error() string {
	return fmt.Sprintf("branch choice %d out of range [0,%d)", e.Index, e.Options)
}

// TurnState is the mutable cursor of the turn machine.
type TurnState struct {
	ActivePlayer   int           `json:"active_player"`
	TurnsRemaining int           `json:"turns_remaining"`
	State          State         `json:"state"`
	StepsRemaining int           `json:"steps_remaining"`
	BranchOptions  []string      `json:"branch_options,omitempty"`
	PendingDice    []int         `json:"pending_dice,omitempty"`
	LastRoll       []int         `json:"last_roll,omitempty"`
	Round          int           `json:"round"`
	StepTimer      time.Duration `json:"-"`
}

func (t TurnState) clone() TurnState {
	t.BranchOptions = append([]string(nil), t.BranchOptions...)
	t.PendingDice = append([]int(nil), t.PendingDice...)
	t.LastRoll = append([]int(nil), t.LastRoll...)
	return t
}
