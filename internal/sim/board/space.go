package board

import (
	"fmt"
	"strings"
)

// SpaceKind is the effect class of a board space. The numeric values match
// the map file encoding.
type SpaceKind int

const (
	KindUnspecified SpaceKind = iota
	Gain
	Drain
	Toggle
	Star
)

var kindNames = map[SpaceKind]string{
	Gain:   "GAIN",
	Drain:  "DRAIN",
	Toggle: "TOGGLE",
	Star:   "STAR",
}

func (k SpaceKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

func (k SpaceKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseSpaceKind accepts either the name (case-insensitive) or the numeric
// map code ("1".."4").
func ParseSpaceKind(s string) (SpaceKind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if s == name || s == fmt.Sprint(int(k)) {
			return k, nil
		}
	}
	return KindUnspecified, fmt.Errorf("unknown space kind %q", s)
}

func (k SpaceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid space kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *SpaceKind) UnmarshalText(b []byte) error {
	v, err := ParseSpaceKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Point is a layout hint for renderers. It has no effect on rules.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Space struct {
	ID    string    `json:"id"`
	Kind  SpaceKind `json:"kind"`
	Value *int      `json:"value,omitempty"`
	Pos   *Point    `json:"pos,omitempty"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Edge) Reverse() Edge { return Edge{From: e.To, To: e.From} }

func (e Edge) String() string { return e.From + "->" + e.To }
