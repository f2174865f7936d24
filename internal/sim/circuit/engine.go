package circuit

import (
	"math"
	"math/cmplx"
)

// DefaultPercentPerMarker is the decoherence added by each marker.
const DefaultPercentPerMarker = 10

// Source is the uniform stream measurement sampling draws from.
type Source interface {
	Float64() float64
}

// Distribution holds one probability per outcome, indexed by Outcome.Index.
type Distribution [4]float64

func (d Distribution) Of(o Outcome) float64 { return d[o.Index()] }

// Map returns the distribution keyed by outcome string.
func (d Distribution) Map() map[Outcome]float64 {
	out := make(map[Outcome]float64, 4)
	for i, o := range Outcomes() {
		out[o] = d[i]
	}
	return out
}

// Engine evaluates programs on the two-wire register.
//
// Noise is modelled as an independent bit flip on each wire at measurement
// time. The channel strength of a wire is percent/100, doubled when a
// two-wire gate touched it, capped at 1. A channel of strength λ flips the
// measured bit with probability λ/2, so full strength yields a uniformly random
// bit and zero strength reproduces the ideal distribution exactly.
type Engine struct {
	PercentPerMarker int
}

func (e Engine) perMarker() int {
	if e.PercentPerMarker <= 0 {
		return DefaultPercentPerMarker
	}
	return e.PercentPerMarker
}

// DecoherencePercent is min(100, markers*PercentPerMarker).
func (e Engine) DecoherencePercent(p Program) int {
	pct := p.MarkerCount() * e.perMarker()
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Evaluate runs p against |00⟩ and returns one sampled outcome.
func (e Engine) Evaluate(p Program, src Source) Outcome {
	ideal := idealDistribution(p)

	r := src.Float64()
	idx := 3
	acc := 0.0
	for i, pr := range ideal {
		acc += pr
		if r < acc {
			idx = i
			break
		}
	}
	// Rounding can leave r above the final cumulative sum; fall back to the
	// last outcome with non-zero weight.
	if ideal[idx] == 0 {
		for i := 3; i >= 0; i-- {
			if ideal[i] > 0 {
				idx = i
				break
			}
		}
	}

	flips := e.flipProbabilities(p)
	for w := 0; w < Wires; w++ {
		if flips[w] > 0 && src.Float64() < flips[w] {
			idx ^= 1 << w
		}
	}
	return outcomeFromIndex(idx)
}

// Probabilities is the exact outcome distribution Evaluate samples from,
// noise included.
func (e Engine) Probabilities(p Program) Distribution {
	ideal := idealDistribution(p)
	flips := e.flipProbabilities(p)
	var out Distribution
	for from, pr := range ideal {
		if pr == 0 {
			continue
		}
		for to := 0; to < 4; to++ {
			w := pr
			for wire := 0; wire < Wires; wire++ {
				if (from^to)&(1<<wire) != 0 {
					w *= flips[wire]
				} else {
					w *= 1 - flips[wire]
				}
			}
			out[to] += w
		}
	}
	return out
}

// IdealProbabilities is the noiseless outcome distribution of p.
func IdealProbabilities(p Program) Distribution { return idealDistribution(p) }

func (e Engine) flipProbabilities(p Program) [Wires]float64 {
	var flips [Wires]float64
	pct := e.DecoherencePercent(p)
	if pct == 0 {
		return flips
	}
	var scale [Wires]float64
	for w := range scale {
		scale[w] = 1
	}
	for _, g := range p.Gates {
		if g.Kind.Arity() != 2 {
			continue
		}
		for _, w := range g.Wires {
			if w >= 0 && w < Wires {
				scale[w] = 2
			}
		}
	}
	for w := range flips {
		strength := math.Min(1, float64(pct)/100*scale[w])
		flips[w] = strength / 2
	}
	return flips
}

type register [4]complex128

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	matH = [2][2]complex128{{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}}
	matX = [2][2]complex128{{0, 1}, {1, 0}}
	matY = [2][2]complex128{{0, -1i}, {1i, 0}}
	matZ = [2][2]complex128{{1, 0}, {0, -1}}
)

func idealDistribution(p Program) Distribution {
	reg := register{1, 0, 0, 0}
	for _, g := range p.Gates {
		if g.Validate() != nil || g.Kind.IsMarker() {
			continue
		}
		reg.apply(g)
	}
	var d Distribution
	total := 0.0
	for i, a := range reg {
		v := cmplx.Abs(a)
		d[i] = v * v
		total += d[i]
	}
	if total > 0 {
		for i := range d {
			d[i] /= total
		}
	}
	return d
}

func (r *register) apply(g PlacedGate) {
	switch g.Kind {
	case GateH:
		r.single(matH, g.Wires[0])
	case GateX:
		r.single(matX, g.Wires[0])
	case GateY:
		r.single(matY, g.Wires[0])
	case GateZ:
		r.single(matZ, g.Wires[0])
	case GateCNOT:
		ctrl, tgt := 1<<g.Wires[0], 1<<g.Wires[1]
		for i := range r {
			if i&ctrl != 0 && i&tgt == 0 {
				r[i], r[i|tgt] = r[i|tgt], r[i]
			}
		}
	case GateSWAP:
		r[1], r[2] = r[2], r[1]
	}
}

func (r *register) single(m [2][2]complex128, wire int) {
	bit := 1 << wire
	for i := range r {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		a0, a1 := r[i], r[j]
		r[i] = m[0][0]*a0 + m[0][1]*a1
		r[j] = m[1][0]*a0 + m[1][1]*a1
	}
}
