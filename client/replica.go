// Package client implements the room replica kept by a participant: a pure
// reducer over server broadcasts with a bounded dedup window, an optimistic
// pending-operation overlay and a reconnecting heartbeat transport.
package client

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/types"
)

// dedupWindowSize bounds the recently-seen identity window. Eviction is
// LRU, so under duplicate-heavy delivery the most recently confirmed
// identities stay in the window.
const dedupWindowSize = 100

// Replica is the local copy of the room. It is initialized by the
// room_state message and thereafter only mutated by Apply.
type Replica struct {
	userId string
	room   *types.Room
	seen   *lru.Cache
}

func NewReplica(userId string) *Replica {
	seen, _ := lru.New(dedupWindowSize) // only fails for size <= 0
	return &Replica{userId: userId, seen: seen}
}

// Room returns the current replica state, nil before the first room_state.
func (r *Replica) Room() *types.Room { return r.room }

// Apply reduces one server message into the replica and reports whether
// the replica changed. It is safe against duplicate delivery: a message
// whose identity (type, origin, timestamp, payload) was already processed
// is discarded, as is the echo of our own user_joined.
func (r *Replica) Apply(msg *types.Message) bool {
	if id, err := msg.Identity(); err == nil {
		if _, dup := r.seen.Get(id); dup {
			return false
		}
		r.seen.Add(id, struct{}{})
	} else {
		globals.AppLogger.Warn("could not hash message identity", "type", msg.Type, "error", err)
	}

	if msg.Type == types.MessageTypeUserJoined && msg.UserId == r.userId {
		return false
	}

	if msg.Type == types.MessageTypeRoomState {
		next := &types.Room{}
		if err := types.DecodePayload(msg.Payload, next); err != nil {
			globals.AppLogger.Error("could not decode room state", "error", err)
			return false
		}
		r.room = next
		return true
	}

	if r.room == nil {
		return false
	}

	switch msg.Type {
	case types.MessageTypeCardAdded:
		card := &types.Card{}
		if err := types.DecodePayload(msg.Payload, card); err != nil {
			return false
		}
		r.room.Cards = append(r.room.Cards, card)

	case types.MessageTypeCardUpdated, types.MessageTypeReactionAdded:
		// reaction_added carries the full updated card, so both reduce to
		// a replace-by-id
		card := &types.Card{}
		if err := types.DecodePayload(msg.Payload, card); err != nil {
			return false
		}
		if !r.replaceCard(card) {
			return false
		}

	case types.MessageTypeCardDeleted:
		card := &types.Card{}
		if err := types.DecodePayload(msg.Payload, card); err != nil {
			return false
		}
		if !r.removeCard(card.Id) {
			return false
		}

	case types.MessageTypeVoteAdded:
		vote := &types.Vote{}
		if err := types.DecodePayload(msg.Payload, vote); err != nil {
			return false
		}
		for _, v := range r.room.Votes {
			if v.CardId == vote.CardId && v.UserId == vote.UserId {
				return false
			}
		}
		r.room.Votes = append(r.room.Votes, vote)
		if card := r.card(vote.CardId); card != nil {
			card.Votes++
		}

	case types.MessageTypeVoteRemoved:
		vote := &types.Vote{}
		if err := types.DecodePayload(msg.Payload, vote); err != nil {
			return false
		}
		removed := false
		for i, v := range r.room.Votes {
			if v.Id == vote.Id {
				r.room.Votes = append(r.room.Votes[:i], r.room.Votes[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return false
		}
		if card := r.card(vote.CardId); card != nil && card.Votes > 0 {
			card.Votes--
		}

	case types.MessageTypeReactionRemoved:
		p := types.ReactionRemovedPayload{}
		if err := types.DecodePayload(msg.Payload, &p); err != nil {
			return false
		}
		card := r.card(p.CardId)
		if card == nil {
			return false
		}
		removed := false
		for i, reaction := range card.Reactions {
			if reaction.UserId == p.UserId && reaction.Emoji == p.Emoji {
				card.Reactions = append(card.Reactions[:i], card.Reactions[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return false
		}

	case types.MessageTypePollVoteAdded:
		pv := &types.PollVote{}
		if err := types.DecodePayload(msg.Payload, pv); err != nil {
			return false
		}
		for i, existing := range r.room.PollVotes {
			if existing.PollId == pv.PollId && existing.UserId == pv.UserId {
				r.room.PollVotes = append(r.room.PollVotes[:i], r.room.PollVotes[i+1:]...)
				break
			}
		}
		r.room.PollVotes = append(r.room.PollVotes, pv)

	case types.MessageTypePollVoteRemoved:
		pv := &types.PollVote{}
		if err := types.DecodePayload(msg.Payload, pv); err != nil {
			return false
		}
		removed := false
		for i, existing := range r.room.PollVotes {
			if existing.PollId == pv.PollId && existing.UserId == pv.UserId {
				r.room.PollVotes = append(r.room.PollVotes[:i], r.room.PollVotes[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return false
		}

	case types.MessageTypeRoomSettingsUpdated:
		// the server broadcasts the merged result, not the patch
		settings := types.RoomSettings{}
		if err := types.DecodePayload(msg.Payload, &settings); err != nil {
			return false
		}
		r.room.Settings = settings

	case types.MessageTypeUserJoined:
		user := &types.User{}
		if err := types.DecodePayload(msg.Payload, user); err != nil {
			return false
		}
		replaced := false
		for i, u := range r.room.Users {
			if u.Id == user.Id {
				r.room.Users[i] = user
				replaced = true
				break
			}
		}
		if !replaced {
			r.room.Users = append(r.room.Users, user)
		}

	case types.MessageTypeUserLeft:
		p := types.UserLeftPayload{}
		if err := types.DecodePayload(msg.Payload, &p); err != nil {
			return false
		}
		removed := false
		for i, u := range r.room.Users {
			if u.Id == p.UserId {
				r.room.Users = append(r.room.Users[:i], r.room.Users[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return false
		}

	default:
		return false
	}

	r.room.UpdatedAt = msg.Timestamp
	return true
}

func (r *Replica) card(id string) *types.Card {
	for _, c := range r.room.Cards {
		if c.Id == id {
			return c
		}
	}
	return nil
}

func (r *Replica) replaceCard(card *types.Card) bool {
	for i, c := range r.room.Cards {
		if c.Id == card.Id {
			r.room.Cards[i] = card
			return true
		}
	}
	return false
}

func (r *Replica) removeCard(id string) bool {
	for i, c := range r.room.Cards {
		if c.Id == id {
			r.room.Cards = append(r.room.Cards[:i], r.room.Cards[i+1:]...)
			return true
		}
	}
	return false
}
