package room

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retroline/retroline/types"
)

func TestFirstJoinerBecomesFacilitator(t *testing.T) {
	a := New("retro-1", "Sprint 42", nil)

	alice := a.AddUser("u1", "Alice")
	assert.True(t, alice.IsFacilitator)
	assert.Equal(t, "u1", a.Snapshot().FacilitatorId)

	bob := a.AddUser("u2", "Bob")
	assert.False(t, bob.IsFacilitator)
	assert.Equal(t, "u1", a.Snapshot().FacilitatorId)
}

func TestDefaultSettings(t *testing.T) {
	a := New("retro-1", "", nil)
	s := a.Snapshot().Settings
	assert.True(t, s.AllowAnonymousCards)
	assert.True(t, s.AllowVoting)
	assert.True(t, s.AllowReactions)
	assert.Equal(t, 10, s.PhaseDuration)
	assert.Equal(t, types.PhaseIdeation, a.Snapshot().Phase)
}

func TestAddCardAssignsIdAndKeepsOrder(t *testing.T) {
	a := New("retro-1", "", nil)
	first := a.AddCard("first", types.ColumnStart, "u1", "Alice")
	second := a.AddCard("second", types.ColumnStop, "u1", "Alice")

	assert.NotEmpty(t, first.Id)
	assert.NotEqual(t, first.Id, second.Id)
	cards := a.Snapshot().Cards
	assert.Equal(t, []string{"first", "second"}, []string{cards[0].Content, cards[1].Content})
}

func TestUpdateCardMergesAndPreservesReactions(t *testing.T) {
	a := New("retro-1", "", nil)
	a.AddUser("u1", "Alice")
	card := a.AddCard("draft", types.ColumnStart, "u1", "Alice")
	a.AddReaction(card.Id, "u1", "Alice", "👍")

	content := "final"
	highlighted := true
	updated := a.UpdateCard(types.UpdateCardRequest{Id: card.Id, Content: &content, IsHighlighted: &highlighted})
	assert.NotNil(t, updated)
	assert.Equal(t, "final", updated.Content)
	assert.Equal(t, types.ColumnStart, updated.Column)
	assert.True(t, updated.IsHighlighted)
	assert.Len(t, updated.Reactions, 1)

	assert.Nil(t, a.UpdateCard(types.UpdateCardRequest{Id: "no-such-card", Content: &content}))
}

func TestDeleteCard(t *testing.T) {
	a := New("retro-1", "", nil)
	card := a.AddCard("x", types.ColumnAction, "u1", "Alice")

	deleted := a.DeleteCard(card.Id)
	assert.Equal(t, card.Id, deleted.Id)
	assert.Empty(t, a.Snapshot().Cards)
	assert.Nil(t, a.DeleteCard(card.Id))
}

func TestDuplicateVoteIsNoOp(t *testing.T) {
	a := New("retro-1", "", nil)
	card := a.AddCard("x", types.ColumnStart, "u1", "Alice")

	vote := a.AddVote(card.Id, "u2", "Bob")
	assert.NotNil(t, vote)
	assert.Equal(t, 1, a.Card(card.Id).Votes)

	assert.Nil(t, a.AddVote(card.Id, "u2", "Bob"))
	assert.Equal(t, 1, a.Card(card.Id).Votes)
	assert.Len(t, a.Snapshot().Votes, 1)

	assert.Nil(t, a.AddVote("no-such-card", "u2", "Bob"))
}

func TestRemoveVoteClampsAtZero(t *testing.T) {
	a := New("retro-1", "", nil)
	card := a.AddCard("x", types.ColumnStart, "u1", "Alice")
	a.AddVote(card.Id, "u2", "Bob")

	removed := a.RemoveVote(card.Id, "u2")
	assert.NotNil(t, removed)
	assert.Equal(t, 0, a.Card(card.Id).Votes)

	// no vote left to remove, counter must not go negative
	assert.Nil(t, a.RemoveVote(card.Id, "u2"))
	assert.Equal(t, 0, a.Card(card.Id).Votes)
}

func TestAddReactionReplacesPrevious(t *testing.T) {
	a := New("retro-1", "", nil)
	card := a.AddCard("x", types.ColumnStart, "u1", "Alice")

	a.AddReaction(card.Id, "u2", "Bob", "👍")
	a.AddReaction(card.Id, "u3", "Carol", "🎉")
	a.AddReaction(card.Id, "u2", "Bob", "❤️")

	reactions := a.Card(card.Id).Reactions
	assert.Len(t, reactions, 2)
	byUser := map[string]string{}
	for _, r := range reactions {
		byUser[r.UserId] = r.Emoji
	}
	assert.Equal(t, "❤️", byUser["u2"])
	assert.Equal(t, "🎉", byUser["u3"])
}

func TestRemoveReactionMatchesEmoji(t *testing.T) {
	a := New("retro-1", "", nil)
	card := a.AddCard("x", types.ColumnStart, "u1", "Alice")
	a.AddReaction(card.Id, "u2", "Bob", "👍")

	// emoji mismatch is a no-op
	assert.Nil(t, a.RemoveReaction(card.Id, "u2", "🎉"))
	assert.Len(t, a.Card(card.Id).Reactions, 1)

	removed := a.RemoveReaction(card.Id, "u2", "👍")
	assert.NotNil(t, removed)
	assert.Empty(t, a.Card(card.Id).Reactions)
}

func TestPollVoteUpsert(t *testing.T) {
	polls := []types.Poll{
		{Question: "Ship it?", Type: types.PollTypeYesNo},
		{Question: "Mood", Type: types.PollTypeScale1To5},
	}
	a := New("retro-1", "", polls)

	pv := a.AddPollVote(types.PollId(0), "u1", "yes")
	assert.NotNil(t, pv)
	pv = a.AddPollVote(types.PollId(0), "u1", "no")
	assert.NotNil(t, pv)
	assert.Len(t, a.Snapshot().PollVotes, 1)
	assert.Equal(t, "no", a.Snapshot().PollVotes[0].Value)

	assert.Nil(t, a.AddPollVote("poll-7", "u1", "yes"))
	assert.False(t, a.PollKnown("poll-7"))
	assert.True(t, a.PollKnown(types.PollId(1)))
}

func TestRemovePollVote(t *testing.T) {
	polls := []types.Poll{{Question: "Ship it?", Type: types.PollTypeYesNo}}
	a := New("retro-1", "", polls)
	a.AddPollVote(types.PollId(0), "u1", "yes")

	removed := a.RemovePollVote(types.PollId(0), "u1")
	assert.NotNil(t, removed)
	assert.Empty(t, a.Snapshot().PollVotes)
	assert.Nil(t, a.RemovePollVote(types.PollId(0), "u1"))
}

func TestUpdateSettingsShallowMerge(t *testing.T) {
	a := New("retro-1", "", nil)

	voting := false
	merged := a.UpdateSettings(types.SettingsPatch{AllowVoting: &voting})
	assert.False(t, merged.AllowVoting)
	// untouched fields keep their values
	assert.True(t, merged.AllowAnonymousCards)
	assert.True(t, merged.AllowReactions)
	assert.Equal(t, 10, merged.PhaseDuration)

	locked := []types.Column{types.ColumnStart}
	duration := 5
	merged = a.UpdateSettings(types.SettingsPatch{LockedColumns: &locked, PhaseDuration: &duration})
	assert.False(t, merged.AllowVoting)
	assert.Equal(t, []types.Column{types.ColumnStart}, merged.LockedColumns)
	assert.Equal(t, 5, merged.PhaseDuration)
}

func TestRemoveUserKeepsFacilitatorId(t *testing.T) {
	a := New("retro-1", "", nil)
	a.AddUser("u1", "Alice")
	a.AddUser("u2", "Bob")

	removed := a.RemoveUser("u1")
	assert.Equal(t, "Alice", removed.Name)
	assert.Len(t, a.Snapshot().Users, 1)
	// the facilitator id sticks even after the facilitator leaves
	assert.Equal(t, "u1", a.Snapshot().FacilitatorId)

	// rejoining a non-empty room does not grant facilitator status
	alice := a.AddUser("u1", "Alice")
	assert.False(t, alice.IsFacilitator)
}

func TestFromSnapshotRoundTrip(t *testing.T) {
	a := New("retro-1", "Sprint 42", []types.Poll{{Question: "Ship it?", Type: types.PollTypeYesNo}})
	a.AddUser("u1", "Alice")
	card := a.AddCard("x", types.ColumnStart, "u1", "Alice")
	a.AddVote(card.Id, "u1", "Alice")

	b := FromSnapshot(a.Snapshot())
	assert.NotNil(t, b.User("u1"))
	assert.Equal(t, 1, b.Card(card.Id).Votes)
	assert.True(t, b.PollKnown(types.PollId(0)))
}
