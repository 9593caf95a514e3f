package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/retroline/retroline/types"
)

// Options configures a full client session: transport plus reconciliation.
type Options struct {
	Host        string
	Secure      bool
	RoomId      string
	UserId      string // generated when empty
	UserName    string
	RoomName    string
	Facilitator bool
	Polls       []types.Poll

	OnChange func(room *types.Room)
	OnState  func(state ConnState)

	RevertTimeout time.Duration
}

// Session is an engine bound to its socket.
type Session struct {
	*Engine
	socket *Socket
}

// Dial connects to a room and starts reconciling. The returned session is
// usable immediately, mutations sent before the connection is up fail
// with ErrNotConnected.
func Dial(opts Options) (*Session, error) {
	if opts.UserId == "" {
		opts.UserId = uuid.NewString()
	}
	engine := NewEngine(opts.UserId, opts.UserName, nil, opts.OnChange, opts.RevertTimeout)
	socket, err := NewSocket(SocketOptions{
		Host:        opts.Host,
		Secure:      opts.Secure,
		RoomId:      opts.RoomId,
		UserId:      opts.UserId,
		UserName:    opts.UserName,
		RoomName:    opts.RoomName,
		Facilitator: opts.Facilitator,
		Polls:       opts.Polls,
		OnMessage:   engine.HandleRaw,
		OnState:     opts.OnState,
	})
	if err != nil {
		return nil, err
	}
	engine.send = socket.Send
	socket.Connect()
	return &Session{Engine: engine, socket: socket}, nil
}

// UserId returns the stable identity the session joined with.
func (s *Session) UserId() string { return s.Engine.userId }

// Close disconnects without triggering a reconnect.
func (s *Session) Close() { s.socket.Close() }
