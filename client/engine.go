package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/types"
)

// SendFunc delivers a message to the server.
type SendFunc func(msg *types.Message) error

// Engine combines the replica, the pending overlay and a send function
// into the full client-side reconciliation loop. Votes, reactions and
// poll votes are applied optimistically; the matching server echo reverts
// the optimistic form and applies the authoritative one, and an echo that
// never arrives reverts after the pending timeout.
type Engine struct {
	mu       sync.Mutex
	userId   string
	userName string
	send     SendFunc
	replica  *Replica
	pending  *Pending
	onChange func(room *types.Room)
}

// NewEngine wires an engine to a send function. onChange runs after every
// replica change, outside the engine lock, with the current room.
func NewEngine(userId, userName string, send SendFunc, onChange func(*types.Room), revertTimeout time.Duration) *Engine {
	e := &Engine{
		userId:   userId,
		userName: userName,
		send:     send,
		replica:  NewReplica(userId),
		onChange: onChange,
	}
	e.pending = NewPending(revertTimeout, e.revertExpired)
	return e
}

// Room returns the current replica state, nil before the first room_state.
func (e *Engine) Room() *types.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replica.Room()
}

// PendingOps reports how many optimistic mutations await confirmation.
func (e *Engine) PendingOps() int { return e.pending.Len() }

// HandleRaw feeds one raw frame from the transport into the engine.
func (e *Engine) HandleRaw(raw []byte) {
	msg := &types.Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		globals.AppLogger.Error("could not unmarshal server message", "error", err)
		return
	}
	e.Handle(msg)
}

// Handle reconciles one server message. An echo of our own pending
// mutation first reverts the optimistic form, then the broadcast is
// applied as authoritative.
func (e *Engine) Handle(msg *types.Message) {
	e.mu.Lock()
	if msg.UserId == e.userId {
		if key, ok := echoKey(msg); ok {
			if revert := e.pending.Take(key); revert != nil {
				revert()
			}
		}
	}
	changed := e.replica.Apply(msg)
	room := e.replica.Room()
	e.mu.Unlock()
	if changed {
		e.notify(room)
	}
}

// echoKey derives the pending-overlay key from a server broadcast.
func echoKey(msg *types.Message) (string, bool) {
	switch msg.Type {
	case types.MessageTypeVoteAdded, types.MessageTypeVoteRemoved:
		vote := &types.Vote{}
		if err := types.DecodePayload(msg.Payload, vote); err != nil {
			return "", false
		}
		return pendingKey(msg.Type, msg.UserId, vote.CardId), true
	case types.MessageTypeReactionAdded:
		card := &types.Card{}
		if err := types.DecodePayload(msg.Payload, card); err != nil {
			return "", false
		}
		return pendingKey(msg.Type, msg.UserId, card.Id), true
	case types.MessageTypeReactionRemoved:
		p := types.ReactionRemovedPayload{}
		if err := types.DecodePayload(msg.Payload, &p); err != nil {
			return "", false
		}
		return pendingKey(msg.Type, msg.UserId, p.CardId), true
	case types.MessageTypePollVoteAdded, types.MessageTypePollVoteRemoved:
		pv := &types.PollVote{}
		if err := types.DecodePayload(msg.Payload, pv); err != nil {
			return "", false
		}
		return pendingKey(msg.Type, msg.UserId, pv.PollId), true
	}
	return "", false
}

func (e *Engine) revertExpired(revert func()) {
	e.mu.Lock()
	revert()
	room := e.replica.Room()
	e.mu.Unlock()
	globals.AppLogger.Warn("optimistic mutation expired unconfirmed, reverted")
	e.notify(room)
}

func (e *Engine) notify(room *types.Room) {
	if e.onChange != nil {
		e.onChange(room)
	}
}

func (e *Engine) sendMessage(msgType string, payload interface{}) error {
	return e.send(&types.Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
		UserId:    e.userId,
	})
}

// AddCard submits a new card. Cards are not applied optimistically, the
// id is server-assigned.
func (e *Engine) AddCard(content string, column types.Column) error {
	return e.sendMessage(types.MessageTypeCardAdded, types.CreateCardRequest{
		Content:    content,
		Column:     column,
		AuthorName: e.userName,
	})
}

func (e *Engine) UpdateCard(req types.UpdateCardRequest) error {
	return e.sendMessage(types.MessageTypeCardUpdated, req)
}

func (e *Engine) DeleteCard(cardId string) error {
	return e.sendMessage(types.MessageTypeCardDeleted, types.DeleteCardRequest{Id: cardId})
}

// AddVote bumps the card's counter locally and submits the vote. The
// counter delta is not idempotent, so a resubmit while the first is still
// unconfirmed, or a vote we already hold confirmed, goes out without a
// second bump: the server no-ops the duplicate and echoes at most once.
func (e *Engine) AddVote(cardId string) error {
	key := pendingKey(types.MessageTypeVoteAdded, e.userId, cardId)
	if !e.pending.has(key) {
		e.withRoom(func(r *Replica) func() {
			card := r.card(cardId)
			if card == nil {
				return nil
			}
			for _, v := range r.room.Votes {
				if v.CardId == cardId && v.UserId == e.userId {
					return nil
				}
			}
			card.Votes++
			return func() {
				if c := r.card(cardId); c != nil && c.Votes > 0 {
					c.Votes--
				}
			}
		}, key)
	}
	return e.sendMessage(types.MessageTypeVoteAdded, types.VoteRequest{
		CardId:   cardId,
		UserName: e.userName,
	})
}

func (e *Engine) RemoveVote(cardId string) error {
	key := pendingKey(types.MessageTypeVoteRemoved, e.userId, cardId)
	if !e.pending.has(key) {
		e.withRoom(func(r *Replica) func() {
			card := r.card(cardId)
			if card == nil || card.Votes == 0 {
				return nil
			}
			card.Votes--
			return func() {
				if c := r.card(cardId); c != nil {
					c.Votes++
				}
			}
		}, key)
	}
	return e.sendMessage(types.MessageTypeVoteRemoved, types.VoteRequest{CardId: cardId})
}

// AddReaction replaces our previous reaction on the card locally and
// submits the new one.
func (e *Engine) AddReaction(cardId, emoji string) error {
	e.withRoom(func(r *Replica) func() {
		card := r.card(cardId)
		if card == nil {
			return nil
		}
		var prior *types.Reaction
		for i, reaction := range card.Reactions {
			if reaction.UserId == e.userId {
				prior = reaction
				card.Reactions = append(card.Reactions[:i], card.Reactions[i+1:]...)
				break
			}
		}
		card.Reactions = append(card.Reactions, &types.Reaction{
			Emoji:     emoji,
			UserId:    e.userId,
			UserName:  e.userName,
			CreatedAt: time.Now(),
		})
		return func() {
			c := r.card(cardId)
			if c == nil {
				return
			}
			for i, reaction := range c.Reactions {
				if reaction.UserId == e.userId {
					c.Reactions = append(c.Reactions[:i], c.Reactions[i+1:]...)
					break
				}
			}
			if prior != nil {
				c.Reactions = append(c.Reactions, prior)
			}
		}
	}, pendingKey(types.MessageTypeReactionAdded, e.userId, cardId))
	return e.sendMessage(types.MessageTypeReactionAdded, types.ReactionRequest{
		CardId:   cardId,
		Emoji:    emoji,
		UserName: e.userName,
	})
}

func (e *Engine) RemoveReaction(cardId, emoji string) error {
	e.withRoom(func(r *Replica) func() {
		card := r.card(cardId)
		if card == nil {
			return nil
		}
		var removed *types.Reaction
		for i, reaction := range card.Reactions {
			if reaction.UserId == e.userId && reaction.Emoji == emoji {
				removed = reaction
				card.Reactions = append(card.Reactions[:i], card.Reactions[i+1:]...)
				break
			}
		}
		if removed == nil {
			return nil
		}
		return func() {
			if c := r.card(cardId); c != nil {
				c.Reactions = append(c.Reactions, removed)
			}
		}
	}, pendingKey(types.MessageTypeReactionRemoved, e.userId, cardId))
	return e.sendMessage(types.MessageTypeReactionRemoved, types.ReactionRequest{
		CardId: cardId,
		Emoji:  emoji,
	})
}

// VotePoll upserts our answer to a poll locally and submits it.
func (e *Engine) VotePoll(pollId string, value interface{}) error {
	e.withRoom(func(r *Replica) func() {
		var prior *types.PollVote
		for i, pv := range r.room.PollVotes {
			if pv.PollId == pollId && pv.UserId == e.userId {
				prior = pv
				r.room.PollVotes = append(r.room.PollVotes[:i], r.room.PollVotes[i+1:]...)
				break
			}
		}
		r.room.PollVotes = append(r.room.PollVotes, &types.PollVote{
			PollId:    pollId,
			UserId:    e.userId,
			Value:     value,
			CreatedAt: time.Now(),
		})
		return func() {
			for i, pv := range r.room.PollVotes {
				if pv.PollId == pollId && pv.UserId == e.userId {
					r.room.PollVotes = append(r.room.PollVotes[:i], r.room.PollVotes[i+1:]...)
					break
				}
			}
			if prior != nil {
				r.room.PollVotes = append(r.room.PollVotes, prior)
			}
		}
	}, pendingKey(types.MessageTypePollVoteAdded, e.userId, pollId))
	return e.sendMessage(types.MessageTypePollVoteAdded, types.PollVoteRequest{
		PollId: pollId,
		Value:  value,
	})
}

func (e *Engine) UnvotePoll(pollId string) error {
	e.withRoom(func(r *Replica) func() {
		var removed *types.PollVote
		for i, pv := range r.room.PollVotes {
			if pv.PollId == pollId && pv.UserId == e.userId {
				removed = pv
				r.room.PollVotes = append(r.room.PollVotes[:i], r.room.PollVotes[i+1:]...)
				break
			}
		}
		if removed == nil {
			return nil
		}
		return func() {
			r.room.PollVotes = append(r.room.PollVotes, removed)
		}
	}, pendingKey(types.MessageTypePollVoteRemoved, e.userId, pollId))
	return e.sendMessage(types.MessageTypePollVoteRemoved, types.PollVoteRemoveRequest{PollId: pollId})
}

// UpdateSettings submits a settings patch. No optimistic apply: the
// server gates this on facilitator status and broadcasts the merged
// result.
func (e *Engine) UpdateSettings(patch types.SettingsPatch) error {
	return e.sendMessage(types.MessageTypeRoomSettingsUpdated, types.RoomSettingsUpdateRequest{Settings: patch})
}

// withRoom applies an optimistic mutation under the engine lock. mutate
// returns the revert to register under key, or nil when the mutation did
// not apply (say, an unknown card).
func (e *Engine) withRoom(mutate func(r *Replica) func(), key string) {
	e.mu.Lock()
	if e.replica.Room() == nil {
		e.mu.Unlock()
		return
	}
	revert := mutate(e.replica)
	room := e.replica.Room()
	e.mu.Unlock()
	if revert == nil {
		return
	}
	e.pending.Track(key, revert)
	e.notify(room)
}
