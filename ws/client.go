package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/types"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Params carries the query-string connection parameters resolved by the
// HTTP handler. RoomName and Polls are consumed only if this connection
// ends up creating the room. Facilitator is the self-declared role flag;
// it never grants facilitator status in a room that already has users.
type Params struct {
	UserId      string
	UserName    string
	RoomName    string
	Facilitator bool
	Polls       []types.Poll
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. It is never closed; the
	// write loop exits via doneChan instead, which sidesteps the usual
	// send-on-closed-channel coordination between the hub loop and the
	// connection goroutines.
	Send chan []byte

	params Params

	// set during registration; gates the settings-update operation
	facilitator bool

	doneChan chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, params Params) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		params:   params,
		doneChan: make(chan struct{}),
	}
}

// Done is closed once the hub has unregistered this client.
func (c *Client) Done() <-chan struct{} { return c.doneChan }

// SendMessage marshals and enqueues a message for this connection. A full
// send buffer drops the message; the read deadline will reap a connection
// that stopped draining.
func (c *Client) SendMessage(msg *types.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		globals.AppLogger.Error("could not marshal message", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping message", "user", c.params.UserId)
	}
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		c.hub.Unregister <- c
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Debug("ws closed unexpectedly", "error", err)
			}
			return
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			c.SendMessage(&types.Message{
				Type:      types.MessageTypeError,
				Payload:   types.ErrorPayload{Message: "failed to process message"},
				Timestamp: time.Now(),
			})
			continue
		}

		// application-level ping is answered right here, it never reaches
		// the room state
		if probe.Type == types.MessageTypePing {
			c.SendMessage(&types.Message{Type: types.MessageTypePong, Timestamp: time.Now()})
			continue
		}

		c.hub.inbound <- inboundMessage{client: c, raw: raw}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
