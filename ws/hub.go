package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/persistence"
	"github.com/retroline/retroline/room"
	"github.com/retroline/retroline/types"
)

const (
	defaultGracePeriod = 5 * time.Second
	persistTimeout     = 5 * time.Second
	graceChannelSize   = 16
)

type inboundMessage struct {
	client *Client
	raw    []byte
}

// Hub owns one room: its aggregate state, its connected clients, the
// per-user grace timers and the dispatch of inbound messages. All of that
// is touched only from the Run loop, one inbound message is fully
// processed (validated, mutated, persisted, broadcast) before the next is
// taken up.
type Hub struct {
	roomId string

	// the aggregate; nil until the first connection creates the room
	state *room.Aggregate

	// persistence; nil means in-memory only
	store persistence.Store

	// Registered clients.
	clients map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	inbound chan inboundMessage

	// grace-period disconnect handling
	graceExpired chan string
	graceTimers  map[string]*time.Timer
	gracePeriod  time.Duration
}

// NewHub builds the hub for one room id and attempts snapshot recovery.
// Load failures are logged and swallowed: a storage outage degrades to
// in-memory-only state for this room instance.
func NewHub(roomId string, store persistence.Store) *Hub {
	h := &Hub{
		roomId:       roomId,
		store:        store,
		clients:      make(map[*Client]struct{}),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		inbound:      make(chan inboundMessage),
		graceExpired: make(chan string, graceChannelSize),
		graceTimers:  make(map[string]*time.Timer),
		gracePeriod:  defaultGracePeriod,
	}
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		snap, err := store.LoadRoom(ctx, roomId)
		if err != nil {
			globals.AppLogger.Error("could not load room snapshot", "room", roomId, "error", err)
		} else if snap != nil {
			h.state = room.FromSnapshot(snap)
			globals.AppLogger.Info("restored room from snapshot", "room", roomId, "cards", len(snap.Cards), "users", len(snap.Users))
		}
	}
	return h
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int { return len(h.clients) }

// Run is the main hub event loop handling register, unregister, inbound
// and grace-expiry events. It runs for the process lifetime of the room;
// teardown of the room itself is the store's expiry.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.handleMessage(msg.client, msg.raw)

		case userId := <-h.graceExpired:
			h.handleGraceExpired(userId)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	userId := c.params.UserId

	// any pending grace timer for this user id is superseded by the new
	// connection
	if t, ok := h.graceTimers[userId]; ok {
		t.Stop()
		delete(h.graceTimers, userId)
	}

	if h.state == nil {
		h.state = room.New(h.roomId, c.params.RoomName, c.params.Polls)
		globals.AppLogger.Info("created room", "room", h.roomId, "facilitator", c.params.UserName, "polls", len(c.params.Polls))
	}

	rejoined := false
	user := h.state.User(userId)
	if user != nil {
		h.state.TouchUser(userId)
		rejoined = true
		globals.AppLogger.Debug("user reconnected", "room", h.roomId, "user", user.Name)
	} else {
		user = h.state.AddUser(userId, c.params.UserName)
		globals.AppLogger.Debug("user joined", "room", h.roomId, "user", user.Name, "users", len(h.state.Snapshot().Users))
	}
	c.facilitator = user.IsFacilitator

	h.clients[c] = struct{}{}
	h.persist()

	// the full snapshot goes to the new connection only
	c.SendMessage(&types.Message{
		Type:      types.MessageTypeRoomState,
		Payload:   h.state.Snapshot(),
		Timestamp: time.Now(),
	})

	if !rejoined {
		h.broadcastExcept(c, types.MessageTypeUserJoined, user, userId)
	}
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.doneChan)

	userId := c.params.UserId
	for other := range h.clients {
		if other.params.UserId == userId {
			return // same user still connected elsewhere
		}
	}

	// presence survives a short disconnect: a page reload and an
	// intentional departure look the same at this point, so removal waits
	// out the grace period
	if t, ok := h.graceTimers[userId]; ok {
		t.Stop()
	}
	h.graceTimers[userId] = time.AfterFunc(h.gracePeriod, func() {
		h.graceExpired <- userId
	})
}

func (h *Hub) handleGraceExpired(userId string) {
	// a reconnect may have superseded the timer between fire and receive
	if _, ok := h.graceTimers[userId]; !ok {
		return
	}
	delete(h.graceTimers, userId)
	for c := range h.clients {
		if c.params.UserId == userId {
			return
		}
	}
	if h.state == nil {
		return
	}
	user := h.state.RemoveUser(userId)
	if user == nil {
		return
	}
	globals.AppLogger.Debug("user left", "room", h.roomId, "user", user.Name, "users", len(h.state.Snapshot().Users))
	h.persist()
	h.broadcast(types.MessageTypeUserLeft, types.UserLeftPayload{UserId: user.Id, UserName: user.Name}, userId)
}

// handleMessage dispatches one inbound message: decode, authorize, mutate,
// persist, broadcast. Unknown entity references and violated uniqueness
// preconditions are silent no-ops; only malformed payloads are answered
// with an error message.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	msg := types.Message{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(c, "failed to process message")
		return
	}
	if h.state == nil {
		return
	}
	userId := c.params.UserId

	switch msg.Type {
	case types.MessageTypeCardAdded:
		req := types.CreateCardRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.Content == "" || !types.ValidColumn(req.Column) {
			h.sendError(c, "invalid card payload")
			return
		}
		authorName := req.AuthorName
		if authorName == "" {
			authorName = c.params.UserName
		}
		card := h.state.AddCard(req.Content, req.Column, userId, authorName)
		h.persistAndBroadcast(types.MessageTypeCardAdded, card, userId)

	case types.MessageTypeCardUpdated:
		req := types.UpdateCardRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.Id == "" || (req.Column != nil && !types.ValidColumn(*req.Column)) {
			h.sendError(c, "invalid card payload")
			return
		}
		if card := h.state.UpdateCard(req); card != nil {
			h.persistAndBroadcast(types.MessageTypeCardUpdated, card, userId)
		}

	case types.MessageTypeCardDeleted:
		req := types.DeleteCardRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.Id == "" {
			h.sendError(c, "invalid card payload")
			return
		}
		if card := h.state.DeleteCard(req.Id); card != nil {
			h.persistAndBroadcast(types.MessageTypeCardDeleted, card, userId)
		}

	case types.MessageTypeVoteAdded:
		req := types.VoteRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.CardId == "" {
			h.sendError(c, "invalid vote payload")
			return
		}
		if vote := h.state.AddVote(req.CardId, userId, h.userName(c, req.UserName)); vote != nil {
			h.persistAndBroadcast(types.MessageTypeVoteAdded, vote, userId)
		}

	case types.MessageTypeVoteRemoved:
		req := types.VoteRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.CardId == "" {
			h.sendError(c, "invalid vote payload")
			return
		}
		if vote := h.state.RemoveVote(req.CardId, userId); vote != nil {
			h.persistAndBroadcast(types.MessageTypeVoteRemoved, vote, userId)
		}

	case types.MessageTypeReactionAdded:
		req := types.ReactionRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.CardId == "" || req.Emoji == "" {
			h.sendError(c, "invalid reaction payload")
			return
		}
		if r := h.state.AddReaction(req.CardId, userId, h.userName(c, req.UserName), req.Emoji); r != nil {
			// the full updated card, so the replacement of the user's
			// previous reaction lands atomically on clients
			h.persistAndBroadcast(types.MessageTypeReactionAdded, h.state.Card(req.CardId), userId)
		}

	case types.MessageTypeReactionRemoved:
		req := types.ReactionRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.CardId == "" || req.Emoji == "" {
			h.sendError(c, "invalid reaction payload")
			return
		}
		if r := h.state.RemoveReaction(req.CardId, userId, req.Emoji); r != nil {
			h.persistAndBroadcast(types.MessageTypeReactionRemoved, types.ReactionRemovedPayload{
				CardId:   req.CardId,
				Emoji:    r.Emoji,
				UserId:   r.UserId,
				UserName: r.UserName,
			}, userId)
		}

	case types.MessageTypePollVoteAdded:
		req := types.PollVoteRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.PollId == "" || req.Value == nil {
			h.sendError(c, "invalid poll vote payload")
			return
		}
		if pv := h.state.AddPollVote(req.PollId, userId, req.Value); pv != nil {
			h.persistAndBroadcast(types.MessageTypePollVoteAdded, pv, userId)
		}

	case types.MessageTypePollVoteRemoved:
		req := types.PollVoteRemoveRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil || req.PollId == "" {
			h.sendError(c, "invalid poll vote payload")
			return
		}
		if pv := h.state.RemovePollVote(req.PollId, userId); pv != nil {
			h.persistAndBroadcast(types.MessageTypePollVoteRemoved, pv, userId)
		}

	case types.MessageTypeRoomSettingsUpdated:
		if !c.facilitator {
			return
		}
		req := types.RoomSettingsUpdateRequest{}
		if err := types.DecodePayload(msg.Payload, &req); err != nil {
			h.sendError(c, "invalid settings payload")
			return
		}
		settings := h.state.UpdateSettings(req.Settings)
		h.persistAndBroadcast(types.MessageTypeRoomSettingsUpdated, settings, userId)
	}
}

func (h *Hub) userName(c *Client, override string) string {
	if override != "" {
		return override
	}
	return c.params.UserName
}

func (h *Hub) sendError(c *Client, text string) {
	c.SendMessage(&types.Message{
		Type:      types.MessageTypeError,
		Payload:   types.ErrorPayload{Message: text},
		Timestamp: time.Now(),
	})
}

func (h *Hub) persistAndBroadcast(msgType string, payload interface{}, origin string) {
	h.persist()
	h.broadcast(msgType, payload, origin)
}

func (h *Hub) persist() {
	if h.store == nil || h.state == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.store.SaveRoom(ctx, h.state.Snapshot()); err != nil {
		// a storage outage degrades this operation to in-memory only
		globals.AppLogger.Error("could not persist room", "room", h.roomId, "error", err)
	}
}

func (h *Hub) broadcast(msgType string, payload interface{}, origin string) {
	data, ok := h.marshal(msgType, payload, origin)
	if !ok {
		return
	}
	for c := range h.clients {
		c.enqueue(data)
	}
}

func (h *Hub) broadcastExcept(skip *Client, msgType string, payload interface{}, origin string) {
	data, ok := h.marshal(msgType, payload, origin)
	if !ok {
		return
	}
	for c := range h.clients {
		if c == skip {
			continue
		}
		c.enqueue(data)
	}
}

func (h *Hub) marshal(msgType string, payload interface{}, origin string) ([]byte, bool) {
	data, err := json.Marshal(&types.Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
		UserId:    origin,
	})
	if err != nil {
		globals.AppLogger.Error("could not marshal broadcast", "type", msgType, "error", err)
		return nil, false
	}
	return data, true
}
