package client

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/types"
)

// ConnState is the externally visible transport state.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	// application-level heartbeat, independent of websocket control frames
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatWait     = 10 * time.Second

	defaultReconnectBase = time.Second
	reconnectCap         = 10 * time.Second
	maxReconnectAttempts = 5

	socketWriteWait = 10 * time.Second
)

var ErrNotConnected = errors.New("socket is not connected")

// SocketOptions configures the transport. UserId must stay stable across
// reconnects so the server can match a reconnect to the grace period of
// the previous connection.
type SocketOptions struct {
	Host        string // host:port of the server
	Secure      bool   // wss instead of ws
	RoomId      string
	UserId      string
	UserName    string
	RoomName    string
	Facilitator bool
	Polls       []types.Poll

	OnMessage func(raw []byte)
	OnState   func(state ConnState)

	Dialer *websocket.Dialer // defaults to websocket.DefaultDialer
}

// Socket is a reconnecting websocket connection to one room. Reconnects
// use exponential backoff starting at one second and capped at ten, for
// at most five attempts; a close initiated by Close or a normal-closure
// frame from the server ends the connection for good.
type Socket struct {
	opts SocketOptions
	url  string

	// timings; defaults from the constants above, overridable in tests
	heartbeatInterval time.Duration
	heartbeatWait     time.Duration
	reconnectBase     time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	pongTimer *time.Timer
	closed    bool

	done chan struct{}
}

func NewSocket(opts SocketOptions) (*Socket, error) {
	if opts.Host == "" || opts.RoomId == "" || opts.UserId == "" {
		return nil, errors.New("host, room id and user id are required")
	}
	return &Socket{
		opts:              opts,
		url:               buildURL(opts),
		heartbeatInterval: defaultHeartbeatInterval,
		heartbeatWait:     defaultHeartbeatWait,
		reconnectBase:     defaultReconnectBase,
		done:              make(chan struct{}),
	}, nil
}

func buildURL(opts SocketOptions) string {
	scheme := "ws"
	if opts.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: opts.Host, Path: "/rooms/" + opts.RoomId}
	q := u.Query()
	q.Set("userId", opts.UserId)
	if opts.UserName != "" {
		q.Set("userName", opts.UserName)
	}
	if opts.RoomName != "" {
		q.Set("roomName", opts.RoomName)
	}
	if opts.Facilitator {
		q.Set("isFacilitator", "true")
	}
	if len(opts.Polls) > 0 {
		if data, err := json.Marshal(opts.Polls); err == nil {
			q.Set("polls", string(data))
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// backoffDelay returns the wait before reconnect attempt n (0-based).
func (s *Socket) backoffDelay(attempt int) time.Duration {
	d := s.reconnectBase << uint(attempt)
	if d > reconnectCap || d <= 0 {
		d = reconnectCap
	}
	return d
}

// Connect starts the connection loop in the background.
func (s *Socket) Connect() {
	go s.run()
}

func (s *Socket) run() {
	attempts := 0
	for {
		if s.isClosed() {
			return
		}
		s.setState(StateConnecting)
		dialer := s.opts.Dialer
		if dialer == nil {
			dialer = websocket.DefaultDialer
		}
		conn, _, err := dialer.Dial(s.url, nil)
		if err == nil {
			attempts = 0
			s.setConn(conn)
			s.setState(StateConnected)
			normal := s.readPump(conn)
			s.setConn(nil)
			if normal || s.isClosed() {
				s.setState(StateDisconnected)
				return
			}
		} else {
			globals.AppLogger.Warn("could not connect", "url", s.url, "error", err)
		}
		if attempts >= maxReconnectAttempts {
			globals.AppLogger.Error("giving up after max reconnect attempts", "attempts", attempts)
			s.setState(StateDisconnected)
			return
		}
		delay := s.backoffDelay(attempts)
		attempts++
		globals.AppLogger.Info("reconnecting", "attempt", attempts, "delay", delay)
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}
	}
}

// readPump consumes the connection until it drops. It returns true when
// the server closed the connection normally, meaning no reconnect should
// follow.
func (s *Socket) readPump(conn *websocket.Conn) bool {
	stopHeartbeat := s.startHeartbeat(conn)
	defer stopHeartbeat()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure)
		}
		probe := struct {
			Type string `json:"type"`
		}{}
		if json.Unmarshal(raw, &probe) == nil && probe.Type == types.MessageTypePong {
			s.pongReceived()
			continue
		}
		if s.opts.OnMessage != nil {
			s.opts.OnMessage(raw)
		}
	}
}

func (s *Socket) startHeartbeat(conn *websocket.Conn) func() {
	ticker := time.NewTicker(s.heartbeatInterval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				msg := &types.Message{
					Type:      types.MessageTypePing,
					Timestamp: time.Now(),
					UserId:    s.opts.UserId,
				}
				if err := s.Send(msg); err != nil {
					return
				}
				s.armPongTimer(conn)
			case <-stop:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(stop)
		s.pongReceived()
	}
}

func (s *Socket) armPongTimer(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pongTimer != nil {
		s.pongTimer.Stop()
	}
	s.pongTimer = time.AfterFunc(s.heartbeatWait, func() {
		// missed pong, force the read pump to fail and reconnect
		globals.AppLogger.Warn("pong timeout, dropping connection")
		conn.Close()
	})
}

func (s *Socket) pongReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
}

// Send marshals msg onto the connection. The socket mutex serializes
// application writes with the heartbeat.
func (s *Socket) Send(msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(msg)
}

// Close shuts the socket down for good, without reconnecting.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
	s.mu.Unlock()
	close(s.done)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) setState(state ConnState) {
	if s.opts.OnState != nil {
		s.opts.OnState(state)
	}
}
