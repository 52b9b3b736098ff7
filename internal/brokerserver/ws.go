package brokerserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/beachcabana/beach/internal/broker"
	"github.com/beachcabana/beach/internal/logger"
)

const (
	wsReadLimit  = 64 * 1024
	writeTimeout = 10 * time.Second
	staleAfter   = 2 * 30 * time.Second
)

// peerConn is one joined peer's live WebSocket connection plus the
// identity it joined under.
type peerConn struct {
	peerID    string
	role      broker.Role
	conn      *websocket.Conn
	sessionID string
}

func (s *Server) roomFor(sessionID string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[sessionID]
	if !ok {
		rm = &room{peers: make(map[string]*peerConn)}
		s.rooms[sessionID] = rm
	}
	return rm
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	sess, ok, err := s.Store.GetSession(sessionID)
	if err != nil || !ok || time.Now().After(sess.ExpiresAt) {
		http.Error(w, "unknown or expired session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Warn("broker ws accept", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	defer conn.CloseNow()

	ctx := r.Context()

	_, data, err := conn.Read(ctx)
	if err != nil {
		logger.Warn("broker ws read join", "err", err)
		return
	}
	var join broker.JoinMsg
	if err := json.Unmarshal(data, &join); err != nil || join.Type != broker.TypeJoin {
		s.writeError(ctx, conn, "expected join message")
		return
	}

	peerID := join.PeerID
	if peerID == "" {
		peerID = uuid.New().String()
	}

	pc := &peerConn{peerID: peerID, role: join.Role, conn: conn, sessionID: sessionID}
	rm := s.roomFor(sessionID)

	rm.mu.Lock()
	existingPeers := make([]broker.Peer, 0, len(rm.peers))
	for _, p := range rm.peers {
		existingPeers = append(existingPeers, broker.Peer{PeerID: p.peerID, Role: p.role})
	}
	rm.peers[peerID] = pc
	rm.mu.Unlock()

	s.writeJSON(ctx, conn, broker.JoinSuccessMsg{Type: broker.TypeJoinSuccess, SessionID: sessionID, PeerID: peerID, Peers: existingPeers})
	s.broadcast(rm, peerID, broker.PeerJoinedMsg{Type: broker.TypePeerJoined, Peer: broker.Peer{PeerID: peerID, Role: join.Role}})

	defer func() {
		rm.mu.Lock()
		delete(rm.peers, peerID)
		rm.mu.Unlock()
		s.broadcast(rm, peerID, broker.PeerLeftMsg{Type: broker.TypePeerLeft, PeerID: peerID})
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, staleAfter)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if readCtx.Err() != nil && ctx.Err() == nil {
				logger.Info("broker ws stale connection", "peer", peerID)
			}
			return
		}

		var env broker.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeError(ctx, conn, "malformed message")
			continue
		}

		switch env.Type {
		case broker.TypeSignal:
			var sig broker.SignalMsg
			if err := json.Unmarshal(data, &sig); err != nil {
				s.writeError(ctx, conn, "malformed signal")
				continue
			}
			s.relaySignal(ctx, rm, peerID, sig)
		case broker.TypePing:
			s.writeJSON(ctx, conn, broker.PongMsg{Type: broker.TypePong})
		default:
			s.writeError(ctx, conn, "unknown message type")
		}
	}
}

func (s *Server) relaySignal(ctx context.Context, rm *room, from string, sig broker.SignalMsg) {
	rm.mu.Lock()
	target, ok := rm.peers[sig.ToPeer]
	rm.mu.Unlock()
	if !ok {
		return
	}
	s.writeJSON(ctx, target.conn, broker.SignalInMsg{
		Type:     broker.TypeSignal,
		FromPeer: from,
		Signal:   sig.Signal,
	})
}

func (s *Server) broadcast(rm *room, exclude string, msg any) {
	rm.mu.Lock()
	targets := make([]*peerConn, 0, len(rm.peers))
	for id, p := range rm.peers {
		if id == exclude {
			continue
		}
		targets = append(targets, p)
	}
	rm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for _, p := range targets {
		s.writeJSON(ctx, p.conn, msg)
	}
}

func (s *Server) writeJSON(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("broker ws marshal", "err", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		logger.Warn("broker ws write", "err", err)
	}
}

func (s *Server) writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	s.writeJSON(ctx, conn, broker.ErrorMsg{Type: broker.TypeError, Message: reason})
}
