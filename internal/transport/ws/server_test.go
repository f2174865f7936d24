package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/game"
	"quantumparty.dev/internal/sim/maps"
	"quantumparty.dev/internal/sim/match"
	"quantumparty.dev/internal/sim/player"
)

func startHost(t *testing.T) (*match.Host, func()) {
	t.Helper()
	b, err := maps.Classic().Build()
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	roster := []player.Player{
		{ID: "P1", Name: "Ada", Slot: 0, Inv: player.NewInventory(player.DefaultSeed())},
		{ID: "P2", Name: "Bo", Slot: 1, Inv: player.NewInventory(player.DefaultSeed())},
	}
	s, err := game.NewSession(b, roster, game.DefaultConfig(), 7)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	h, err := match.New(match.Config{MapName: "classic", TickRateHz: 50}, s)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	return h, func() {
		cancel()
		<-done
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil returns the first message of the given type.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return b
		}
	}
}

func hello(seat string) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test",
		Role:            protocol.RoleInput,
		Seat:            seat,
	}
}

func TestServer_HelloWelcomeInputAck(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h, stop := startHost(t)
	defer stop()
	srv := httptest.NewServer(NewServer(h, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	send(t, conn, hello("P1"))
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Seat != "P1" || welcome.GameID != h.GameID() || len(welcome.Seats) != 2 {
		t.Fatalf("welcome=%+v", welcome)
	}

	send(t, conn, protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 1, Input: protocol.InputRoll})
	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.AckFor != 1 || !ack.Accepted {
		t.Fatalf("ack=%+v", ack)
	}

	// Schema-invalid input never reaches the table.
	send(t, conn, map[string]any{"type": protocol.TypeInput, "protocol_version": protocol.Version, "seq": 2})
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("bad input ack=%+v", ack)
	}
}

func TestServer_RejectsUnknownSeatAndBadVersion(t *testing.T) {
	h, stop := startHost(t)
	defer stop()
	srv := httptest.NewServer(NewServer(h, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	send(t, conn, hello("P9"))
	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Code != protocol.ErrSeatUnknown {
		t.Fatalf("ack=%+v", ack)
	}
	conn.Close()

	conn = dial(t, srv)
	defer conn.Close()
	bad := hello("")
	bad.ProtocolVersion = "0.0"
	send(t, conn, bad)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v", err)
	}
}

// stallTable takes join requests but answers none of them.
type stallTable struct {
	join  chan match.JoinRequest
	leave chan string
	inbox chan match.InputEnvelope
}

func (f *stallTable) Join() chan<- match.JoinRequest    { return f.join }
func (f *stallTable) Leave() chan<- string              { return f.leave }
func (f *stallTable) Inbox() chan<- match.InputEnvelope { return f.inbox }

func TestServer_JoinTimeoutLeavesSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	table := &stallTable{
		join:  make(chan match.JoinRequest, 1),
		leave: make(chan string, 1),
		inbox: make(chan match.InputEnvelope, 1),
	}
	ws := NewServer(table, nil)
	ws.joinTimeout = 100 * time.Millisecond
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	send(t, conn, hello(""))

	var req match.JoinRequest
	select {
	case req = <-table.join:
	case <-time.After(3 * time.Second):
		t.Fatalf("join never reached the table")
	}
	select {
	case id := <-table.leave:
		if id != req.SessionID {
			t.Fatalf("leave id=%q want %q", id, req.SessionID)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out join was not left")
	}
}
