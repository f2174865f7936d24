// Package board holds the directed board graph and its reversible edge
// transformations.
//
// The current edge set is never accumulated: it is always one of four
// transforms of the base edge set, recomputed from scratch on every change.
package board

import (
	"fmt"
	"sort"

	"quantumparty.dev/internal/sim/circuit"
)

// Transform names the relation between the current and the base edge set.
type Transform string

const (
	TransformIdentity     Transform = "IDENTITY"
	TransformReversed     Transform = "REVERSED"
	TransformToggleFirst  Transform = "TOGGLE_FIRST"
	TransformToggleSecond Transform = "TOGGLE_SECOND"
)

func (t Transform) Valid() bool {
	switch t {
	case TransformIdentity, TransformReversed, TransformToggleFirst, TransformToggleSecond:
		return true
	}
	return false
}

// Intner is the randomness CollectStar needs.
type Intner interface {
	IntN(n int) int
}

// StarHolder receives collected stars.
type StarHolder interface {
	AddStar(n int)
}

type Graph struct {
	spaces    map[string]*Space
	ids       []string // ascending
	start     string   // first declared space
	baseKinds map[string]SpaceKind

	base      []Edge // ascending by (From, To), no duplicates
	baseSucc  map[string][]string
	edges     []Edge
	succ      map[string][]string
	transform Transform
}

// Build validates the topology and returns a graph in the identity transform.
// Duplicate edges collapse into one.
func Build(spaces []Space, edges []Edge) (*Graph, error) {
	if len(spaces) == 0 {
		return nil, &MalformedTopologyError{Reason: "no spaces"}
	}
	g := &Graph{
		spaces:    make(map[string]*Space, len(spaces)),
		baseKinds: make(map[string]SpaceKind, len(spaces)),
	}
	for i := range spaces {
		s := spaces[i]
		if s.ID == "" {
			return nil, &MalformedTopologyError{Reason: "empty space id"}
		}
		if _, dup := g.spaces[s.ID]; dup {
			return nil, &MalformedTopologyError{Reason: "duplicate space id", Node: s.ID}
		}
		if !s.Kind.Valid() {
			return nil, &MalformedTopologyError{Reason: fmt.Sprintf("invalid kind %d", int(s.Kind)), Node: s.ID}
		}
		cp := s
		g.spaces[s.ID] = &cp
		g.baseKinds[s.ID] = s.Kind
		g.ids = append(g.ids, s.ID)
	}
	g.start = spaces[0].ID
	sort.Strings(g.ids)

	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		if _, ok := g.spaces[e.From]; !ok {
			bad := e
			return nil, &MalformedTopologyError{Reason: "unknown source", Edge: &bad}
		}
		if _, ok := g.spaces[e.To]; !ok {
			bad := e
			return nil, &MalformedTopologyError{Reason: "unknown target", Edge: &bad}
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.base = append(g.base, e)
	}
	sortEdges(g.base)
	g.baseSucc = adjacency(g.base)
	g.setEdges(TransformIdentity, g.base)
	return g, nil
}

func sortEdges(es []Edge) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].From != es[j].From {
			return es[i].From < es[j].From
		}
		return es[i].To < es[j].To
	})
}

func adjacency(es []Edge) map[string][]string {
	m := make(map[string][]string)
	for _, e := range es {
		m[e.From] = append(m[e.From], e.To)
	}
	for k := range m {
		sort.Strings(m[k])
	}
	return m
}

func (g *Graph) setEdges(t Transform, es []Edge) {
	cp := append([]Edge(nil), es...)
	sortEdges(cp)
	g.edges = cp
	g.succ = adjacency(cp)
	g.transform = t
}

// Successors returns the targets of current edges leaving id in ascending id
// order. Branch choices index into this slice.
func (g *Graph) Successors(id string) []string {
	return append([]string(nil), g.succ[id]...)
}

// Reset restores the base edge set.
func (g *Graph) Reset() { g.setEdges(TransformIdentity, g.base) }

// Start is the first space in declaration order, where tokens begin.
func (g *Graph) Start() string { return g.start }

// Transform reports which transform produced the current edges.
func (g *Graph) Transform() Transform { return g.transform }

// ApplyOutcome recomputes the current edges from base for a measurement
// outcome and returns the resulting transform. "11" on an already reversed
// board restores base. Unrecognised outcomes act as "00".
func (g *Graph) ApplyOutcome(o circuit.Outcome) Transform {
	switch o {
	case circuit.Outcome11:
		if g.transform == TransformReversed {
			g.Reset()
		} else {
			g.SetTransform(TransformReversed)
		}
	case circuit.Outcome01:
		g.SetTransform(TransformToggleFirst)
	case circuit.Outcome10:
		g.SetTransform(TransformToggleSecond)
	default:
		g.Reset()
	}
	return g.transform
}

// SetTransform derives the current edges from base for t. Snapshot import
// uses it directly.
func (g *Graph) SetTransform(t Transform) error {
	switch t {
	case TransformIdentity:
		g.Reset()
	case TransformReversed:
		rev := make([]Edge, len(g.base))
		for i, e := range g.base {
			rev[i] = e.Reverse()
		}
		g.setEdges(t, rev)
	case TransformToggleFirst, TransformToggleSecond:
		drop := 0
		if t == TransformToggleSecond {
			drop = 1
		}
		removed := make(map[Edge]bool)
		for _, id := range g.ids {
			if g.spaces[id].Kind != Toggle {
				continue
			}
			succ := g.baseSucc[id]
			if len(succ) < 2 {
				continue
			}
			removed[Edge{From: id, To: succ[drop]}] = true
		}
		kept := make([]Edge, 0, len(g.base))
		for _, e := range g.base {
			if !removed[e] {
				kept = append(kept, e)
			}
		}
		g.setEdges(t, kept)
	default:
		return fmt.Errorf("unknown transform %q", t)
	}
	return nil
}

// Edges returns a copy of the current edge set in (From, To) order.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// BaseEdges returns a copy of the base edge set in (From, To) order.
func (g *Graph) BaseEdges() []Edge { return append([]Edge(nil), g.base...) }

// Space returns a copy of the space with the given id.
func (g *Graph) Space(id string) (Space, bool) {
	s, ok := g.spaces[id]
	if !ok {
		return Space{}, false
	}
	return *s, true
}

func (g *Graph) Has(id string) bool {
	_, ok := g.spaces[id]
	return ok
}

// IDs returns every space id in ascending order.
func (g *Graph) IDs() []string { return append([]string(nil), g.ids...) }

// Spaces returns copies of all spaces in ascending id order.
func (g *Graph) Spaces() []Space {
	out := make([]Space, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, *g.spaces[id])
	}
	return out
}

func (g *Graph) StarCount() int {
	n := 0
	for _, s := range g.spaces {
		if s.Kind == Star {
			n++
		}
	}
	return n
}

// SetKind overwrites the kind of one space.
func (g *Graph) SetKind(id string, k SpaceKind) error {
	s, ok := g.spaces[id]
	if !ok {
		return fmt.Errorf("unknown space %q", id)
	}
	if !k.Valid() {
		return fmt.Errorf("invalid kind %d for space %q", int(k), id)
	}
	s.Kind = k
	return nil
}

// RestoreSpaces puts every space back to the kind it was built with.
func (g *Graph) RestoreSpaces() {
	for id, k := range g.baseKinds {
		g.spaces[id].Kind = k
	}
}

// CollectStar awards a star for entering a Star space. The space becomes Gain
// and one other Gain space, chosen uniformly in id order, becomes Star. When
// no other Gain space exists the board is left without a Star. It returns the
// promoted id, or "" when nothing was collected or promoted.
func (g *Graph) CollectStar(holder StarHolder, id string, rng Intner) (promoted string, collected bool) {
	s, ok := g.spaces[id]
	if !ok || s.Kind != Star {
		return "", false
	}
	holder.AddStar(1)
	s.Kind = Gain

	var candidates []string
	for _, other := range g.ids {
		if other != id && g.spaces[other].Kind == Gain {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return "", true
	}
	pick := candidates[rng.IntN(len(candidates))]
	g.spaces[pick].Kind = Star
	return pick, true
}
