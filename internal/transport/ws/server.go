// Package ws serves the table protocol over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quantumparty.dev/internal/protocol"
	"quantumparty.dev/internal/sim/match"
)

// Table is the part of a match host the transport talks to.
type Table interface {
	Join() chan<- match.JoinRequest
	Leave() chan<- string
	Inbox() chan<- match.InputEnvelope
}

const (
	outQueue     = 32
	readDeadline = 60 * time.Second
)

type Server struct {
	table Table
	log   *log.Logger

	// joinTimeout bounds each wait on the table's join and leave channels.
	joinTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(t Table, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		table:       t,
		log:         logger,
		joinTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // LAN devices
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(r.Context(), conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			in, code, reason := decodeInput(msg)
			if code != "" {
				pushAck(out, in.Seq, code, reason)
				continue
			}
			select {
			case s.table.Inbox() <- match.InputEnvelope{SessionID: sessionID, Input: in}:
			default:
				pushAck(out, in.Seq, protocol.ErrBusy, "input queue full")
			}
		}
		cancel()
		<-done

		s.leave(sessionID)
	}
}

func (s *Server) leave(sessionID string) {
	select {
	case s.table.Leave() <- sessionID:
	case <-time.After(s.joinTimeout):
		s.log.Printf("leave %s: table not draining", sessionID)
	}
}

// abandonJoin releases a join request the table already took but whose
// reply never arrived in time. A late acceptance is left again.
func (s *Server) abandonJoin(sessionID string, respCh <-chan match.JoinResponse) {
	select {
	case resp := <-respCh:
		if resp.Code != "" {
			return
		}
	case <-time.After(s.joinTimeout):
	}
	s.leave(sessionID)
}

// decodeInput returns the decoded INPUT or a rejection code.
func decodeInput(msg []byte) (protocol.InputMsg, string, string) {
	var in protocol.InputMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return in, protocol.ErrProtoBadRequest, "malformed message"
	}
	if base.Type != protocol.TypeInput {
		return in, protocol.ErrProtoBadRequest, "expected INPUT, got " + base.Type
	}
	if err := json.Unmarshal(msg, &in); err != nil {
		return in, protocol.ErrProtoBadRequest, "malformed INPUT"
	}
	if in.ProtocolVersion != protocol.Version {
		return in, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	if err := protocol.Validate(msg); err != nil {
		return in, protocol.ErrProtoBadRequest, err.Error()
	}
	return in, "", ""
}

func pushAck(out chan []byte, seq uint64, code, reason string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          seq,
		Code:            code,
		Message:         reason,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if err := protocol.Validate(msg); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest)
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}

	out = make(chan []byte, outQueue)
	respCh := make(chan match.JoinResponse, 1)
	req := match.JoinRequest{SessionID: uuid.NewString(), Hello: hello, Out: out, Resp: respCh}

	timer := time.NewTimer(s.joinTimeout)
	defer timer.Stop()
	select {
	case s.table.Join() <- req:
	case <-ctx.Done():
		return "", nil
	case <-timer.C:
		closeWith(conn, protocol.ErrBusy)
		return "", nil
	}
	var resp match.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		s.abandonJoin(req.SessionID, respCh)
		return "", nil
	case <-timer.C:
		closeWith(conn, protocol.ErrBusy)
		s.abandonJoin(req.SessionID, respCh)
		return "", nil
	}
	if resp.Code != "" {
		_ = writeJSON(conn, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			Code:            resp.Code,
			Message:         resp.Message,
		})
		closeWith(conn, resp.Code)
		return "", nil
	}
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(resp.Welcome.SessionID)
		return "", nil
	}
	s.log.Printf("joined session=%s role=%s seat=%q client=%q", resp.Welcome.SessionID, resp.Welcome.Role, resp.Welcome.Seat, hello.ClientName)
	return resp.Welcome.SessionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
