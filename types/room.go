package types

import (
	"fmt"
	"time"
)

// Phase is the room lifecycle phase. It is carried in the snapshot for
// compatibility but no handler currently transitions it.
type Phase string

const (
	PhaseIdeation   Phase = "ideation"
	PhaseGrouping   Phase = "grouping"
	PhaseVoting     Phase = "voting"
	PhaseDiscussion Phase = "discussion"
)

// PollType selects the answer shape of a poll.
type PollType string

const (
	PollTypeYesNo          PollType = "yes_no"
	PollTypeScale1To5      PollType = "scale_1_5"
	PollTypeMultipleChoice PollType = "multiple_choice"
	PollTypeEmojiScale     PollType = "emoji_scale"
)

// Poll is selected once at room creation and immutable thereafter. Polls
// have no generated id, they are identified positionally, see PollId.
type Poll struct {
	Question string   `json:"question" mapstructure:"question"`
	Type     PollType `json:"type" mapstructure:"type"`
	Options  []string `json:"options,omitempty" mapstructure:"options"`
}

// PollId returns the positional identifier of the poll at index i.
func PollId(i int) string {
	return fmt.Sprintf("poll-%d", i)
}

// PollVote records one user's answer to one poll. At most one PollVote
// exists per (PollId, UserId); re-voting replaces the previous answer.
// Value is numeric or string depending on the poll type.
type PollVote struct {
	PollId    string      `json:"pollId" mapstructure:"pollId"`
	UserId    string      `json:"userId" mapstructure:"userId"`
	Value     interface{} `json:"value" mapstructure:"value"`
	CreatedAt time.Time   `json:"createdAt" mapstructure:"createdAt"`
}

// RoomSettings is mutated only by the facilitator, via shallow merge of a
// SettingsPatch.
type RoomSettings struct {
	AllowAnonymousCards bool     `json:"allowAnonymousCards" mapstructure:"allowAnonymousCards"`
	AllowVoting         bool     `json:"allowVoting" mapstructure:"allowVoting"`
	AllowReactions      bool     `json:"allowReactions" mapstructure:"allowReactions"`
	LockedColumns       []Column `json:"lockedColumns" mapstructure:"lockedColumns"`
	PhaseDuration       int      `json:"phaseDuration" mapstructure:"phaseDuration"` // minutes
}

// SettingsPatch is a partial settings update. Nil fields are left untouched
// by the merge.
type SettingsPatch struct {
	AllowAnonymousCards *bool     `json:"allowAnonymousCards,omitempty" mapstructure:"allowAnonymousCards"`
	AllowVoting         *bool     `json:"allowVoting,omitempty" mapstructure:"allowVoting"`
	AllowReactions      *bool     `json:"allowReactions,omitempty" mapstructure:"allowReactions"`
	LockedColumns       *[]Column `json:"lockedColumns,omitempty" mapstructure:"lockedColumns"`
	PhaseDuration       *int      `json:"phaseDuration,omitempty" mapstructure:"phaseDuration"`
}

// PhaseTimer is part of the persisted snapshot but currently inert, no
// handler starts or stops it.
type PhaseTimer struct {
	Phase     Phase     `json:"phase" mapstructure:"phase"`
	StartTime time.Time `json:"startTime" mapstructure:"startTime"`
	Duration  int       `json:"duration" mapstructure:"duration"` // minutes
	IsActive  bool      `json:"isActive" mapstructure:"isActive"`
}

// Room is the full state of one retrospective. It is owned exclusively by
// the room aggregate for its process lifetime; persisted copies are
// snapshots, not shared-mutable state.
type Room struct {
	Id            string       `json:"id" mapstructure:"id"`
	Name          string       `json:"name" mapstructure:"name"`
	Phase         Phase        `json:"phase" mapstructure:"phase"`
	FacilitatorId string       `json:"facilitatorId" mapstructure:"facilitatorId"`
	CreatedAt     time.Time    `json:"createdAt" mapstructure:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt" mapstructure:"updatedAt"`
	Users         []*User      `json:"users" mapstructure:"users"`
	Cards         []*Card      `json:"cards" mapstructure:"cards"`
	Votes         []*Vote      `json:"votes" mapstructure:"votes"`
	Polls         []Poll       `json:"polls" mapstructure:"polls"`
	PollVotes     []*PollVote  `json:"pollVotes" mapstructure:"pollVotes"`
	Settings      RoomSettings `json:"settings" mapstructure:"settings"`
	PhaseTimer    *PhaseTimer  `json:"phaseTimer,omitempty" mapstructure:"phaseTimer"`
}
