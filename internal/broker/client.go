package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/beachcabana/beach/internal/logger"
)

var (
	ErrConnectFailed = errors.New("broker: connect failed")
	ErrJoinRefused   = errors.New("broker: join refused")
	ErrChannelClosed = errors.New("broker: channel closed")
	ErrTimeout       = errors.New("broker: timeout")
	ErrBadMessage    = errors.New("broker: bad message")
)

const (
	heartbeatInterval = 30 * time.Second
	staleAfter        = 2 * heartbeatInterval
	writeTimeout      = 10 * time.Second
)

// State is a peer's position in the connection state machine of §4.5.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateFailed       State = "failed"
)

// Client is a rendezvous-only WebSocket client to the broker. The
// broker only ever sees peer ids, transport preferences, join order,
// and opaque sealed envelopes.
type Client struct {
	URL        string
	SessionID  string
	PeerID     string
	Role       Role
	Passphrase string
	Transports []Transport
	Preferred  Transport

	OnPeerJoined  func(Peer)
	OnPeerLeft    func(peerID string)
	OnSignal      func(fromPeer string, signal json.RawMessage)
	OnJoined      func(JoinSuccessMsg)
	OnStateChange func(State, error)

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
}

// Run connects and re-connects with exponential backoff until ctx is
// cancelled or the broker rejects the join outright.
func (c *Client) Run(ctx context.Context) error {
	c.setState(StateConnecting, nil)
	backoff := NewBackoff(500*time.Millisecond, 15*time.Second)

	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected, ctx.Err())
			return ctx.Err()
		}
		var joinErr *joinRefusedError
		if errors.As(err, &joinErr) {
			c.setState(StateFailed, err)
			return err
		}

		c.setState(StateDisconnected, err)
		logger.Warn("broker disconnected, reconnecting", "err", err)

		delay := backoff.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		c.setState(StateConnecting, nil)
	}
}

type joinRefusedError struct{ reason string }

func (e *joinRefusedError) Error() string { return fmt.Sprintf("join refused: %s", e.reason) }

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.OnStateChange != nil {
		c.OnStateChange(s, err)
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	conn.SetReadLimit(1 << 20)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.CloseNow()

	join := JoinMsg{
		Type:                TypeJoin,
		PeerID:              c.PeerID,
		Role:                c.Role,
		Passphrase:          c.Passphrase,
		SupportedTransports: c.Transports,
		PreferredTransport:  c.Preferred,
	}
	if err := c.writeJSON(ctx, join); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(hbCtx)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, staleAfter)
		_, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			if readCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("%w: no frame within %s", ErrTimeout, staleAfter)
			}
			return fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("broker: bad message", "err", err)
			continue
		}

		switch env.Type {
		case TypeJoinSuccess:
			var msg JoinSuccessMsg
			json.Unmarshal(data, &msg)
			c.setState(StateJoined, nil)
			if c.OnJoined != nil {
				c.OnJoined(msg)
			}

		case TypeJoinError:
			var msg JoinErrorMsg
			json.Unmarshal(data, &msg)
			return &joinRefusedError{reason: msg.Reason}

		case TypePeerJoined:
			var msg PeerJoinedMsg
			json.Unmarshal(data, &msg)
			if c.OnPeerJoined != nil {
				c.OnPeerJoined(msg.Peer)
			}

		case TypePeerLeft:
			var msg PeerLeftMsg
			json.Unmarshal(data, &msg)
			if c.OnPeerLeft != nil {
				c.OnPeerLeft(msg.PeerID)
			}

		case TypeSignal:
			var msg SignalInMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if c.OnSignal != nil {
				c.OnSignal(msg.FromPeer, msg.Signal)
			}

		case TypePong:
			// heartbeat ack, nothing to do

		case TypeError:
			var msg ErrorMsg
			json.Unmarshal(data, &msg)
			logger.Warn("broker error", "message", msg.Message)

		default:
			logger.Warn("broker: unknown message type", "type", env.Type)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeJSON(ctx, PingMsg{Type: TypePing}); err != nil {
				return
			}
		}
	}
}

// SendSignal forwards an opaque signal payload to toPeer via the broker.
func (c *Client) SendSignal(ctx context.Context, toPeer string, signal json.RawMessage) error {
	return c.writeJSON(ctx, SignalMsg{Type: TypeSignal, ToPeer: toPeer, Signal: signal})
}

func (c *Client) writeJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrChannelClosed)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
