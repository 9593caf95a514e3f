// Package room holds the authoritative in-memory state of a single
// retrospective and the mutation for every event kind. The aggregate does
// no I/O and is only ever called from the owning hub's run loop, so none
// of it is locked.
package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/retroline/retroline/types"
)

const defaultPhaseDuration = 10 // minutes

// Aggregate owns one types.Room. Mutations return the mutated entity, or
// nil when a precondition was violated and the operation was a no-op.
type Aggregate struct {
	state    *types.Room
	userById map[string]*types.User

	now func() time.Time
}

// New creates a fresh room. Polls are fixed here and immutable afterwards.
func New(id, name string, polls []types.Poll) *Aggregate {
	a := &Aggregate{now: time.Now}
	ts := a.now()
	if name == "" {
		name = "Retro Room " + id
	}
	a.state = &types.Room{
		Id:            id,
		Name:          name,
		Phase:         types.PhaseIdeation,
		CreatedAt:     ts,
		UpdatedAt:     ts,
		Users:         make([]*types.User, 0),
		Cards:         make([]*types.Card, 0),
		Votes:         make([]*types.Vote, 0),
		Polls:         append([]types.Poll(nil), polls...),
		PollVotes:     make([]*types.PollVote, 0),
		Settings: types.RoomSettings{
			AllowAnonymousCards: true,
			AllowVoting:         true,
			AllowReactions:      true,
			LockedColumns:       make([]types.Column, 0),
			PhaseDuration:       defaultPhaseDuration,
		},
	}
	a.userById = make(map[string]*types.User)
	return a
}

// FromSnapshot wraps a room loaded from the store.
func FromSnapshot(state *types.Room) *Aggregate {
	a := &Aggregate{state: state, now: time.Now}
	a.userById = make(map[string]*types.User, len(state.Users))
	for _, u := range state.Users {
		a.userById[u.Id] = u
	}
	return a
}

// Snapshot returns the owned room state. Callers must not mutate it; the
// hub only reads it for broadcasting and marshals it for persistence.
func (a *Aggregate) Snapshot() *types.Room { return a.state }

func (a *Aggregate) touch() { a.state.UpdatedAt = a.now() }

// User returns the user with the given id, or nil.
func (a *Aggregate) User(id string) *types.User { return a.userById[id] }

// AddUser appends a new user. The first user of an empty room becomes the
// facilitator; everyone after that never does.
func (a *Aggregate) AddUser(id, name string) *types.User {
	if u := a.userById[id]; u != nil {
		return u
	}
	ts := a.now()
	u := &types.User{
		Id:            id,
		Name:          name,
		IsFacilitator: len(a.state.Users) == 0,
		JoinedAt:      ts,
		LastSeen:      ts,
	}
	if u.IsFacilitator {
		a.state.FacilitatorId = u.Id
	}
	a.state.Users = append(a.state.Users, u)
	a.userById[u.Id] = u
	a.touch()
	return u
}

// TouchUser refreshes LastSeen on reconnect. No-op if the id is unknown.
func (a *Aggregate) TouchUser(id string) *types.User {
	u := a.userById[id]
	if u == nil {
		return nil
	}
	u.LastSeen = a.now()
	a.touch()
	return u
}

// RemoveUser removes the user from the room's user list. No-op if unknown.
func (a *Aggregate) RemoveUser(id string) *types.User {
	u := a.userById[id]
	if u == nil {
		return nil
	}
	delete(a.userById, id)
	for i, cand := range a.state.Users {
		if cand.Id == id {
			a.state.Users = append(a.state.Users[:i], a.state.Users[i+1:]...)
			break
		}
	}
	a.touch()
	return u
}

// Card returns the card with the given id, or nil.
func (a *Aggregate) Card(id string) *types.Card {
	for _, c := range a.state.Cards {
		if c.Id == id {
			return c
		}
	}
	return nil
}

// AddCard appends a new card; list order is insertion order.
func (a *Aggregate) AddCard(content string, column types.Column, authorId, authorName string) *types.Card {
	ts := a.now()
	card := &types.Card{
		Id:         uuid.NewString(),
		Content:    content,
		Column:     column,
		AuthorId:   authorId,
		AuthorName: authorName,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		Votes:      0,
		Reactions:  make([]*types.Reaction, 0),
	}
	a.state.Cards = append(a.state.Cards, card)
	a.touch()
	return card
}

// UpdateCard merges the provided fields over the existing card. The
// reaction list is untouched even though the update payload never carries
// it. No-op if the id is unknown.
func (a *Aggregate) UpdateCard(req types.UpdateCardRequest) *types.Card {
	card := a.Card(req.Id)
	if card == nil {
		return nil
	}
	if req.Content != nil {
		card.Content = *req.Content
	}
	if req.Column != nil {
		card.Column = *req.Column
	}
	if req.IsHighlighted != nil {
		card.IsHighlighted = *req.IsHighlighted
	}
	card.UpdatedAt = a.now()
	a.touch()
	return card
}

// DeleteCard removes the card from the list and returns the pre-mutation
// entity. No-op if unknown.
func (a *Aggregate) DeleteCard(id string) *types.Card {
	for i, c := range a.state.Cards {
		if c.Id == id {
			a.state.Cards = append(a.state.Cards[:i], a.state.Cards[i+1:]...)
			a.touch()
			return c
		}
	}
	return nil
}

// AddVote records a vote and increments the card's denormalized count.
// No-op if the card is unknown or the user already voted on it.
func (a *Aggregate) AddVote(cardId, userId, userName string) *types.Vote {
	card := a.Card(cardId)
	if card == nil {
		return nil
	}
	for _, v := range a.state.Votes {
		if v.CardId == cardId && v.UserId == userId {
			return nil
		}
	}
	vote := &types.Vote{
		Id:        uuid.NewString(),
		CardId:    cardId,
		UserId:    userId,
		UserName:  userName,
		CreatedAt: a.now(),
	}
	a.state.Votes = append(a.state.Votes, vote)
	card.Votes++
	a.touch()
	return vote
}

// RemoveVote removes the user's vote on the card and decrements the count,
// clamped at zero. No-op if no matching vote exists.
func (a *Aggregate) RemoveVote(cardId, userId string) *types.Vote {
	for i, v := range a.state.Votes {
		if v.CardId == cardId && v.UserId == userId {
			a.state.Votes = append(a.state.Votes[:i], a.state.Votes[i+1:]...)
			if card := a.Card(cardId); card != nil && card.Votes > 0 {
				card.Votes--
			}
			a.touch()
			return v
		}
	}
	return nil
}

// AddReaction upserts the user's reaction on the card: any previous
// reaction by the same user is replaced. No-op if the card is unknown.
func (a *Aggregate) AddReaction(cardId, userId, userName, emoji string) *types.Reaction {
	card := a.Card(cardId)
	if card == nil {
		return nil
	}
	for i, r := range card.Reactions {
		if r.UserId == userId {
			card.Reactions = append(card.Reactions[:i], card.Reactions[i+1:]...)
			break
		}
	}
	reaction := &types.Reaction{
		Id:        uuid.NewString(),
		Emoji:     emoji,
		UserId:    userId,
		UserName:  userName,
		CreatedAt: a.now(),
	}
	card.Reactions = append(card.Reactions, reaction)
	a.touch()
	return reaction
}

// RemoveReaction removes an exact (card, user, emoji) match. No-op
// otherwise.
func (a *Aggregate) RemoveReaction(cardId, userId, emoji string) *types.Reaction {
	card := a.Card(cardId)
	if card == nil {
		return nil
	}
	for i, r := range card.Reactions {
		if r.UserId == userId && r.Emoji == emoji {
			card.Reactions = append(card.Reactions[:i], card.Reactions[i+1:]...)
			a.touch()
			return r
		}
	}
	return nil
}

// PollKnown reports whether pollId names one of the room's polls.
func (a *Aggregate) PollKnown(pollId string) bool {
	for i := range a.state.Polls {
		if types.PollId(i) == pollId {
			return true
		}
	}
	return false
}

// AddPollVote upserts the user's answer for the poll: a previous answer is
// replaced. No-op if the poll id is unknown.
func (a *Aggregate) AddPollVote(pollId, userId string, value interface{}) *types.PollVote {
	if !a.PollKnown(pollId) {
		return nil
	}
	for i, pv := range a.state.PollVotes {
		if pv.PollId == pollId && pv.UserId == userId {
			a.state.PollVotes = append(a.state.PollVotes[:i], a.state.PollVotes[i+1:]...)
			break
		}
	}
	vote := &types.PollVote{
		PollId:    pollId,
		UserId:    userId,
		Value:     value,
		CreatedAt: a.now(),
	}
	a.state.PollVotes = append(a.state.PollVotes, vote)
	a.touch()
	return vote
}

// RemovePollVote removes the user's answer for the poll. No-op if none
// exists.
func (a *Aggregate) RemovePollVote(pollId, userId string) *types.PollVote {
	for i, pv := range a.state.PollVotes {
		if pv.PollId == pollId && pv.UserId == userId {
			a.state.PollVotes = append(a.state.PollVotes[:i], a.state.PollVotes[i+1:]...)
			a.touch()
			return pv
		}
	}
	return nil
}

// UpdateSettings shallow-merges the patch into the current settings and
// returns the result.
func (a *Aggregate) UpdateSettings(patch types.SettingsPatch) types.RoomSettings {
	s := &a.state.Settings
	if patch.AllowAnonymousCards != nil {
		s.AllowAnonymousCards = *patch.AllowAnonymousCards
	}
	if patch.AllowVoting != nil {
		s.AllowVoting = *patch.AllowVoting
	}
	if patch.AllowReactions != nil {
		s.AllowReactions = *patch.AllowReactions
	}
	if patch.LockedColumns != nil {
		s.LockedColumns = append([]types.Column(nil), (*patch.LockedColumns)...)
	}
	if patch.PhaseDuration != nil {
		s.PhaseDuration = *patch.PhaseDuration
	}
	a.touch()
	return *s
}
