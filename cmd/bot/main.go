package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"

	"github.com/gorilla/websocket"

	"quantumparty.dev/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		seat = flag.String("seat", "P1", "seat to play")
		name = flag.String("name", "bot", "client name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            protocol.RoleInput,
		Seat:            *seat,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{seat: *seat}
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.maxGates = w.Params.MaxGates
			logger.Printf("WELCOME session=%s game=%s seat=%s turns=%d seed=%d", w.SessionID, w.GameID, w.Seat, w.Params.Turns, w.Params.Seed)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("rejected seq=%d code=%s msg=%s", ack.AckFor, ack.Code, ack.Message)
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if in, ok := b.next(&st); ok {
				if err := conn.WriteJSON(in); err != nil {
					logger.Printf("send: %v", err)
					return
				}
			}
			if st.Turn.State == "GAME_OVER" && len(st.Standings) > 0 {
				logger.Printf("game over: winner=%s stars=%d", st.Standings[0].ID, st.Standings[0].Stars)
			}
		}
	}
}

type bot struct {
	seat     string
	maxGates int
	seq      uint64
	last     string
}

// next returns the input to send for st, at most once per distinct
// decision point.
func (b *bot) next(st *protocol.StateMsg) (protocol.InputMsg, bool) {
	in, ok := decide(b.seat, b.maxGates, st)
	if !ok {
		return in, false
	}
	key := decisionKey(st)
	if key == b.last {
		return in, false
	}
	b.last = key
	b.seq++
	in.Seq = b.seq
	return in, true
}

func decisionKey(st *protocol.StateMsg) string {
	k := fmt.Sprintf("%s|%s|%s|%d|%d|%d", st.GameID, st.Turn.State, st.Turn.Active, st.Turn.TurnsRemaining, len(st.Turn.PendingDice), st.Turn.StepsRemaining)
	if st.GateRound != nil {
		k += fmt.Sprintf("|%s|%d", st.GateRound.Current, len(st.GateRound.Program))
	}
	return k
}

// decide picks the move for seat. It places the first gate it holds in
// alphabet order and measures once nobody can place any more.
func decide(seat string, maxGates int, st *protocol.StateMsg) (protocol.InputMsg, bool) {
	in := protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Player: seat}

	if gr := st.GateRound; gr != nil {
		if gr.Current == "" || (maxGates > 0 && len(gr.Program) >= maxGates) {
			in.Player = ""
			in.Input = protocol.InputMeasure
			return in, true
		}
		if gr.Current != seat {
			return in, false
		}
		gate, wires := pickGate(gr.Inventories[seat])
		if gate == "" {
			in.Input = protocol.InputSkip
			return in, true
		}
		in.Input = protocol.InputPlaceGate
		in.Gate = gate
		in.Wires = wires
		return in, true
	}

	if st.Turn.Active != seat {
		return in, false
	}
	switch st.Turn.State {
	case "IDLE", "ROLLING":
		in.Input = protocol.InputRoll
		return in, true
	case "AWAITING_BRANCH_CHOICE":
		choice := 0
		in.Input = protocol.InputChoose
		in.Choice = &choice
		return in, true
	}
	return in, false
}

func pickGate(inv map[string]int) (string, []int) {
	names := make([]string, 0, len(inv))
	for g, n := range inv {
		if n > 0 && g != "DECOH" {
			names = append(names, g)
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	switch g := names[0]; g {
	case "CNOT", "SWAP":
		return g, []int{0, 1}
	default:
		return g, []int{0}
	}
}
