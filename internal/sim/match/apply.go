package match

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/circuit"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/gateround"
	"quantumparty.dev/internal/sim/player"
)

var (
	ErrBadInput    = errors.New("bad input")
	ErrWrongPlayer = errors.New("input is not from the player who is up")
	ErrNoRound     = errors.New("no gate round open")
)

// actor is the player expected to act next: the gate round's current player
// while one is open, otherwise the active board player.
func (h *Host) actor() string {
	if h.round != nil {
		id, _ := h.round.Current()
		return id
	}
	if h.session.State() == game.StateGameOver {
		return ""
	}
	return h.session.Active().ID
}

// checkTurn rejects inputs from a seat-bound device, or naming a player,
// other than the one who is up.
func (h *Host) checkTurn(in RecordedInput) (string, error) {
	who := h.actor()
	if in.Seat != "" && in.Seat != who {
		return who, fmt.Errorf("%w: seat %q, %q is up", ErrWrongPlayer, in.Seat, who)
	}
	if in.Input.Player != "" && in.Input.Player != who {
		return who, fmt.Errorf("%w: %q named, %q is up", ErrWrongPlayer, in.Input.Player, who)
	}
	return who, nil
}

func (h *Host) apply(in RecordedInput) error {
	msg := in.Input
	switch msg.Input {
	case protocol.InputRoll:
		if _, err := h.checkTurn(in); err != nil {
			return err
		}
		_, err := h.session.Roll()
		return err

	case protocol.InputChoose:
		if msg.Choice == nil {
			return fmt.Errorf("%w: CHOOSE without choice", ErrBadInput)
		}
		if _, err := h.checkTurn(in); err != nil {
			return err
		}
		return h.session.ChooseBranch(*msg.Choice)

	case protocol.InputPlaceGate:
		if h.round == nil {
			return ErrNoRound
		}
		who, err := h.checkTurn(in)
		if err != nil {
			return err
		}
		kind, err := circuit.ParseGateKind(msg.Gate)
		if err != nil {
			return err
		}
		_, err = h.round.Place(who, kind, msg.Wires...)
		return err

	case protocol.InputSkip:
		if h.round == nil {
			return ErrNoRound
		}
		who, err := h.checkTurn(in)
		if err != nil {
			return err
		}
		return h.round.Skip(who)

	case protocol.InputMeasure:
		// Measuring is a table action; any input device may close the round.
		if h.round == nil {
			return ErrNoRound
		}
		if _, err := h.session.ResolveGateRound(h.round.Result()); err != nil {
			return err
		}
		h.round.Close()
		return nil

	case protocol.InputReset:
		if msg.Turns != 0 && len(h.cfg.AllowedTurns) > 0 && !slices.Contains(h.cfg.AllowedTurns, msg.Turns) {
			return fmt.Errorf("%w: turns %d not in %v", ErrBadInput, msg.Turns, h.cfg.AllowedTurns)
		}
		if msg.Turns < 0 {
			return fmt.Errorf("%w: negative turns", ErrBadInput)
		}
		h.session.ResetTurns(msg.Turns)
		h.gameID.Store(uuid.NewString())
		h.refreshInfo()
		return nil
	}
	return fmt.Errorf("%w: unknown input %q", ErrBadInput, msg.Input)
}

// CodeFor maps a rule error to its protocol error code.
func CodeFor(err error) string {
	var choice *game.InvalidBranchChoiceError
	var spend *player.InsufficientGateError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &choice):
		return protocol.ErrInvalidChoice
	case errors.As(err, &spend):
		return protocol.ErrNoResource
	case errors.Is(err, ErrWrongPlayer), errors.Is(err, gateround.ErrNotYourTurn):
		return protocol.ErrNotYourTurn
	case errors.Is(err, gateround.ErrCircuitFull):
		return protocol.ErrCircuitFull
	case errors.Is(err, gateround.ErrRoundClosed), errors.Is(err, gateround.ErrNoneActive):
		return protocol.ErrRoundClosed
	case errors.Is(err, game.ErrInvalidState), errors.Is(err, ErrNoRound):
		return protocol.ErrInvalidState
	case errors.Is(err, ErrBadInput), errors.Is(err, circuit.ErrUnknownGate), errors.Is(err, circuit.ErrBadWires):
		return protocol.ErrBadRequest
	}
	return protocol.ErrInternal
}
