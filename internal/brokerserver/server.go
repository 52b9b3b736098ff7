// Package brokerserver implements the untrusted rendezvous broker of
// spec §6: a REST surface for session lifecycle and a WebSocket
// endpoint for signal relay. It only ever sees opaque sealed envelopes
// and connection metadata -- never plaintext terminal content or key
// material, per spec §4.1's broker threat model.
package brokerserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beachcabana/beach/internal/broker"
	"github.com/beachcabana/beach/internal/logger"
	"github.com/beachcabana/beach/internal/store"
)

// Config controls broker server behavior.
type Config struct {
	SessionTTL time.Duration
	SweepEvery time.Duration
}

func DefaultConfig() Config {
	return Config{SessionTTL: time.Hour, SweepEvery: 5 * time.Minute}
}

// Server is the broker's HTTP + WebSocket surface.
type Server struct {
	Store  *store.Store
	Config Config
	mux    *http.ServeMux

	signingKey []byte

	mu    sync.Mutex
	rooms map[string]*room
}

// room tracks the peers currently joined to a session for signal
// relay and roster broadcast. The broker never inspects SealedSignal
// payloads it relays between peers.
type room struct {
	mu    sync.Mutex
	peers map[string]*peerConn
}

func NewServer(st *store.Store, cfg Config) *Server {
	signingKey, err := newSigningKey()
	if err != nil {
		// A broker instance without a signing key can still serve
		// rendezvous traffic; it just issues tokens no one can use.
		logger.Error("generate session-token signing key", "err", err)
	}
	s := &Server{
		Store:      st,
		Config:     cfg,
		mux:        http.NewServeMux(),
		rooms:      make(map[string]*room),
		signingKey: signingKey,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /ws/{sessionID}", s.handleWS)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	sess, err := s.Store.CreateSession(sessionID, s.Config.SessionTTL)
	if err != nil {
		logger.Error("create session", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := s.issueSessionToken(sess.SessionID, sess.ExpiresAt)
	if err != nil {
		logger.Warn("issue session token", "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createSessionResponse{SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt, Token: token})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok, err := s.Store.GetSession(id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok || time.Now().After(sess.ExpiresAt) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	// The bearer token is optional here: this endpoint returns only the
	// session id and expiry, and the broker checks no passphrase (the
	// WebSocket join does not either); session content is sealed end to
	// end between the peers. A present token is still validated so a
	// forged one is rejected rather than silently ignored.
	if tok := bearerToken(r); tok != "" {
		if err := s.validateSessionToken(tok, id); err != nil {
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createSessionResponse{SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// RunSweeper periodically deletes expired sessions and envelopes until
// stop is closed. Intended to run as a background goroutine from cmd/beach-broker.
func (s *Server) RunSweeper(stop <-chan struct{}) {
	t := time.NewTicker(s.Config.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n, err := s.Store.SweepExpired(); err != nil {
				logger.Warn("sweep expired sessions", "err", err)
			} else if n > 0 {
				logger.Info("swept expired sessions", "count", n)
			}
		case <-stop:
			return
		}
	}
}
