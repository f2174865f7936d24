// Package player holds per-player state and the ordering rules over players.
package player

import "sort"

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Slot     int       `json:"slot"`
	Priority int       `json:"priority"`
	Position string    `json:"position"`
	Inv      Inventory `json:"inventory"`
}

func (p *Player) AddStar(n int) { p.Inv.AddStar(n) }

func (p Player) Clone() Player {
	p.Inv = p.Inv.Clone()
	return p
}

// TurnOrder sorts players by ascending Priority, ties broken by Slot. The
// result is a new slice; the caller fixes it for the whole game.
func TurnOrder(players []Player) []Player {
	out := make([]Player, len(players))
	for i := range players {
		out[i] = players[i].Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

type Standing struct {
	Rank   int    `json:"rank"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Stars  int    `json:"stars"`
	Gates  int    `json:"gates"`
	Seated int    `json:"seated"`
}

// Standings ranks players by stars, then gate tokens held, then seating
// order. Equal stars and gates share a rank.
func Standings(ordered []Player) []Standing {
	out := make([]Standing, len(ordered))
	for i, p := range ordered {
		out[i] = Standing{ID: p.ID, Name: p.Name, Stars: p.Inv.Stars, Gates: p.Inv.Total(), Seated: i}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stars != out[j].Stars {
			return out[i].Stars > out[j].Stars
		}
		if out[i].Gates != out[j].Gates {
			return out[i].Gates > out[j].Gates
		}
		return out[i].Seated < out[j].Seated
	})
	for i := range out {
		if i > 0 && out[i].Stars == out[i-1].Stars && out[i].Gates == out[i-1].Gates {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}
