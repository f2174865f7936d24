package dice

// Faces is the number of faces on a movement die.
const Faces = 6

// BitSource yields uniformly distributed low bits.
type BitSource interface {
	Bits(n uint) uint64
}

// RollDie returns a value in [1,6] with probability 1/6 each.
//
// A 3-bit uniform draw is taken and rejected while it is >= 6, so every
// accepted value is equally likely. The expected number of draws is 8/6.
func RollDie(src BitSource) int {
	for {
		v := int(src.Bits(3))
		if v < Faces {
			return v + 1
		}
	}
}

// RollTurn rolls the two independent dice that make up a movement roll.
func RollTurn(src BitSource) (d1, d2 int) {
	d1 = RollDie(src)
	d2 = RollDie(src)
	return d1, d2
}

// Steps is the number of spaces a turn roll moves.
func Steps(d1, d2 int) int { return d1 + d2 }
