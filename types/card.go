package types

import "time"

// Column is one of the fixed board columns.
type Column string

const (
	ColumnStart  Column = "start"
	ColumnStop   Column = "stop"
	ColumnAction Column = "action"
	ColumnPoll   Column = "poll"
)

// ValidColumn reports whether c is a member of the fixed column set.
func ValidColumn(c Column) bool {
	switch c {
	case ColumnStart, ColumnStop, ColumnAction, ColumnPoll:
		return true
	}
	return false
}

// Card is a single retro note. Votes is denormalized and maintained
// incrementally by the vote mutations, it is never recomputed from the
// room's vote list on read.
type Card struct {
	Id            string      `json:"id" mapstructure:"id"`
	Content       string      `json:"content" mapstructure:"content"`
	Column        Column      `json:"column" mapstructure:"column"`
	AuthorId      string      `json:"authorId" mapstructure:"authorId"`
	AuthorName    string      `json:"authorName" mapstructure:"authorName"`
	CreatedAt     time.Time   `json:"createdAt" mapstructure:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt" mapstructure:"updatedAt"`
	Votes         int         `json:"votes" mapstructure:"votes"`
	Reactions     []*Reaction `json:"reactions" mapstructure:"reactions"`
	IsHighlighted bool        `json:"isHighlighted" mapstructure:"isHighlighted"`
	IsLocked      bool        `json:"isLocked" mapstructure:"isLocked"`
}

// Vote records one user's vote on one card. At most one Vote exists per
// (CardId, UserId) pair.
type Vote struct {
	Id        string    `json:"id" mapstructure:"id"`
	CardId    string    `json:"cardId" mapstructure:"cardId"`
	UserId    string    `json:"userId" mapstructure:"userId"`
	UserName  string    `json:"userName" mapstructure:"userName"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}

// Reaction is an emoji reaction embedded in its card. At most one Reaction
// exists per (card, UserId): adding a new one replaces the user's previous
// reaction on that card.
type Reaction struct {
	Id        string    `json:"id" mapstructure:"id"`
	Emoji     string    `json:"emoji" mapstructure:"emoji"`
	UserId    string    `json:"userId" mapstructure:"userId"`
	UserName  string    `json:"userName" mapstructure:"userName"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}
