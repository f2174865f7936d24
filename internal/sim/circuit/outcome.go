package circuit

import "fmt"

// Outcome is a 2-bit measurement result. The left character is wire 1 and the
// right character is wire 0.
type Outcome string

const (
	Outcome00 Outcome = "00"
	Outcome01 Outcome = "01"
	Outcome10 Outcome = "10"
	Outcome11 Outcome = "11"
)

// Outcomes lists every outcome in basis-index order.
func Outcomes() [4]Outcome {
	return [4]Outcome{Outcome00, Outcome01, Outcome10, Outcome11}
}

func (o Outcome) Valid() bool {
	switch o {
	case Outcome00, Outcome01, Outcome10, Outcome11:
		return true
	}
	return false
}

// Index is the basis-state index, wire 0 in the low bit.
func (o Outcome) Index() int {
	switch o {
	case Outcome01:
		return 1
	case Outcome10:
		return 2
	case Outcome11:
		return 3
	}
	return 0
}

func outcomeFromIndex(i int) Outcome { return Outcomes()[i&3] }

func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("invalid measurement outcome %q", s)
	}
	return o, nil
}
