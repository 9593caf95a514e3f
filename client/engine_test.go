package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/retroline/retroline/types"
)

type sentRecorder struct {
	mu   sync.Mutex
	msgs []*types.Message
}

func (s *sentRecorder) send(msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sentRecorder) last(t *testing.T) *types.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		t.Fatal("nothing sent")
	}
	return s.msgs[len(s.msgs)-1]
}

func seededEngine(t *testing.T, revertTimeout time.Duration) (*Engine, *sentRecorder) {
	t.Helper()
	rec := &sentRecorder{}
	e := NewEngine("me", "Me", rec.send, nil, revertTimeout)
	e.Handle(wireMsg(t, types.MessageTypeRoomState, baseRoom(), "", time.Now()))
	if e.Room() == nil {
		t.Fatal("room state not applied")
	}
	return e, rec
}

func TestAddVoteOptimisticThenConfirmed(t *testing.T) {
	e, rec := seededEngine(t, time.Minute)

	assert.NoError(t, e.AddVote("c1"))
	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Equal(t, 1, e.PendingOps())
	assert.Equal(t, types.MessageTypeVoteAdded, rec.last(t).Type)

	// the echo reverts the optimistic bump and applies the authoritative
	// vote, net effect one
	vote := &types.Vote{Id: "v1", CardId: "c1", UserId: "me", UserName: "Me"}
	e.Handle(wireMsg(t, types.MessageTypeVoteAdded, vote, "me", time.Now()))

	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Len(t, e.Room().Votes, 1)
	assert.Equal(t, 0, e.PendingOps())
}

func TestDoubleVoteSubmitConverges(t *testing.T) {
	e, rec := seededEngine(t, time.Minute)

	assert.NoError(t, e.AddVote("c1"))
	assert.NoError(t, e.AddVote("c1"))
	// both submits go out, only the first applies locally
	rec.mu.Lock()
	assert.Len(t, rec.msgs, 2)
	rec.mu.Unlock()
	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Equal(t, 1, e.PendingOps())

	// the server no-ops the duplicate, so exactly one echo arrives
	vote := &types.Vote{Id: "v1", CardId: "c1", UserId: "me", UserName: "Me"}
	e.Handle(wireMsg(t, types.MessageTypeVoteAdded, vote, "me", time.Now()))

	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Len(t, e.Room().Votes, 1)
	assert.Equal(t, 0, e.PendingOps())

	// resubmitting a confirmed vote must not bump either
	assert.NoError(t, e.AddVote("c1"))
	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Equal(t, 0, e.PendingOps())
}

func TestDoubleRemoveVoteConverges(t *testing.T) {
	e, _ := seededEngine(t, time.Minute)
	e.Handle(wireMsg(t, types.MessageTypeVoteAdded, &types.Vote{Id: "v1", CardId: "c1", UserId: "other"}, "other", time.Now()))
	e.Handle(wireMsg(t, types.MessageTypeVoteAdded, &types.Vote{Id: "v2", CardId: "c1", UserId: "me"}, "me", time.Now().Add(time.Second)))
	assert.Equal(t, 2, e.Room().Cards[0].Votes)

	assert.NoError(t, e.RemoveVote("c1"))
	assert.NoError(t, e.RemoveVote("c1"))
	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Equal(t, 1, e.PendingOps())

	echo := &types.Vote{Id: "v2", CardId: "c1", UserId: "me"}
	e.Handle(wireMsg(t, types.MessageTypeVoteRemoved, echo, "me", time.Now().Add(2*time.Second)))

	// the other user's vote survives
	assert.Equal(t, 1, e.Room().Cards[0].Votes)
	assert.Len(t, e.Room().Votes, 1)
	assert.Equal(t, 0, e.PendingOps())
}

func TestAddVoteRevertsWhenUnconfirmed(t *testing.T) {
	e, _ := seededEngine(t, 20*time.Millisecond)

	assert.NoError(t, e.AddVote("c1"))
	assert.Equal(t, 1, e.Room().Cards[0].Votes)

	// the server rejected it silently (say, a duplicate), no echo arrives
	assert.Eventually(t, func() bool {
		return e.Room().Cards[0].Votes == 0 && e.PendingOps() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestAddVoteUnknownCardSendsWithoutOptimism(t *testing.T) {
	e, rec := seededEngine(t, time.Minute)

	assert.NoError(t, e.AddVote("no-such-card"))
	assert.Equal(t, 0, e.PendingOps())
	assert.Equal(t, types.MessageTypeVoteAdded, rec.last(t).Type)
}

func TestRemoveVoteOptimistic(t *testing.T) {
	e, _ := seededEngine(t, time.Minute)
	vote := &types.Vote{Id: "v1", CardId: "c1", UserId: "other"}
	e.Handle(wireMsg(t, types.MessageTypeVoteAdded, vote, "other", time.Now()))
	assert.Equal(t, 1, e.Room().Cards[0].Votes)

	assert.NoError(t, e.RemoveVote("c1"))
	assert.Equal(t, 0, e.Room().Cards[0].Votes)
	assert.Equal(t, 1, e.PendingOps())
}

func TestAddReactionOptimisticReplace(t *testing.T) {
	e, _ := seededEngine(t, time.Minute)

	assert.NoError(t, e.AddReaction("c1", "👍"))
	reactions := e.Room().Cards[0].Reactions
	assert.Len(t, reactions, 1)
	assert.Equal(t, "👍", reactions[0].Emoji)

	// second reaction replaces the first locally
	assert.NoError(t, e.AddReaction("c1", "❤️"))
	reactions = e.Room().Cards[0].Reactions
	assert.Len(t, reactions, 1)
	assert.Equal(t, "❤️", reactions[0].Emoji)

	// confirmed by the echo carrying the full card
	card := baseRoom().Cards[0]
	card.Reactions = []*types.Reaction{{Id: "r1", Emoji: "❤️", UserId: "me", UserName: "Me"}}
	e.Handle(wireMsg(t, types.MessageTypeReactionAdded, card, "me", time.Now()))
	reactions = e.Room().Cards[0].Reactions
	assert.Len(t, reactions, 1)
	assert.Equal(t, "r1", reactions[0].Id)
	assert.Equal(t, 0, e.PendingOps())
}

func TestVotePollOptimisticUpsert(t *testing.T) {
	e, rec := seededEngine(t, time.Minute)

	assert.NoError(t, e.VotePoll("poll-0", "yes"))
	assert.Len(t, e.Room().PollVotes, 1)
	assert.Equal(t, "yes", e.Room().PollVotes[0].Value)

	assert.NoError(t, e.VotePoll("poll-0", "no"))
	assert.Len(t, e.Room().PollVotes, 1)
	assert.Equal(t, "no", e.Room().PollVotes[0].Value)
	assert.Equal(t, types.MessageTypePollVoteAdded, rec.last(t).Type)

	pv := &types.PollVote{PollId: "poll-0", UserId: "me", Value: "no"}
	e.Handle(wireMsg(t, types.MessageTypePollVoteAdded, pv, "me", time.Now()))
	assert.Len(t, e.Room().PollVotes, 1)
	assert.Equal(t, 0, e.PendingOps())
}

func TestUpdateSettingsIsNotOptimistic(t *testing.T) {
	e, rec := seededEngine(t, time.Minute)

	voting := false
	assert.NoError(t, e.UpdateSettings(types.SettingsPatch{AllowVoting: &voting}))
	// local state untouched until the merged result comes back
	assert.True(t, e.Room().Settings.AllowVoting)
	assert.Equal(t, 0, e.PendingOps())
	assert.Equal(t, types.MessageTypeRoomSettingsUpdated, rec.last(t).Type)

	merged := types.RoomSettings{AllowAnonymousCards: true, AllowVoting: false, AllowReactions: true, PhaseDuration: 10}
	e.Handle(wireMsg(t, types.MessageTypeRoomSettingsUpdated, merged, "u1", time.Now()))
	assert.False(t, e.Room().Settings.AllowVoting)
}

func TestOnChangeFires(t *testing.T) {
	rec := &sentRecorder{}
	changes := 0
	e := NewEngine("me", "Me", rec.send, func(*types.Room) { changes++ }, time.Minute)

	e.Handle(wireMsg(t, types.MessageTypeRoomState, baseRoom(), "", time.Now()))
	assert.Equal(t, 1, changes)

	// dedup'd redelivery must not notify
	msg := wireMsg(t, types.MessageTypeCardAdded, &types.Card{Id: "c2", Column: types.ColumnStop}, "u1", time.Now())
	e.Handle(msg)
	e.Handle(msg)
	assert.Equal(t, 2, changes)
}

func TestDialRequiresHost(t *testing.T) {
	_, err := Dial(Options{RoomId: "retro-1"})
	assert.Error(t, err)
}
