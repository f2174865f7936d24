// Package policy maps a measurement outcome onto a board mutation.
package policy

import (
	"quantumparty.dev/internal/sim/board"
	"quantumparty.dev/internal/sim/circuit"
)

// Mutator is the part of the board a policy changes.
type Mutator interface {
	ApplyOutcome(o circuit.Outcome) board.Transform
}

// Apply mutates b for outcome o and reports the resulting transform.
func Apply(b Mutator, o circuit.Outcome) board.Transform {
	return b.ApplyOutcome(o)
}

// Describe is a short human label for what an outcome does to the board.
func Describe(o circuit.Outcome) string {
	switch o {
	case circuit.Outcome11:
		return "all paths reverse"
	case circuit.Outcome01:
		return "toggle spaces close their first branch"
	case circuit.Outcome10:
		return "toggle spaces close their second branch"
	default:
		return "board unchanged"
	}
}
