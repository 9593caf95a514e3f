package types

import (
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/mitchellh/mapstructure"
)

// Message type constants, shared by the inbound and outbound direction.
const (
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
	MessageTypeError               = "error"
	MessageTypeRoomState           = "room_state"
	MessageTypeUserJoined          = "user_joined"
	MessageTypeUserLeft            = "user_left"
	MessageTypeCardAdded           = "card_added"
	MessageTypeCardUpdated         = "card_updated"
	MessageTypeCardDeleted         = "card_deleted"
	MessageTypeVoteAdded           = "vote_added"
	MessageTypeVoteRemoved         = "vote_removed"
	MessageTypeReactionAdded       = "reaction_added"
	MessageTypeReactionRemoved     = "reaction_removed"
	MessageTypePollVoteAdded       = "poll_vote_added"
	MessageTypePollVoteRemoved     = "poll_vote_removed"
	MessageTypeRoomSettingsUpdated = "room_settings_updated"
)

// Message is the envelope actually sent over the websocket connection, in
// both directions. On the inbound path Payload unmarshals into a
// map[string]interface{} and is then decoded into the request type for the
// declared Type, see DecodePayload.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	UserId    string      `json:"userId,omitempty"`
}

// Identity returns a structural digest of (type, origin, timestamp,
// payload). Two deliveries of the same broadcast hash identically, which is
// what the client dedup window keys on.
func (m *Message) Identity() (uint64, error) {
	return hashstructure.Hash(struct {
		Type      string
		UserId    string
		Timestamp string
		Payload   interface{}
	}{
		Type:      m.Type,
		UserId:    m.UserId,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:   m.Payload,
	}, hashstructure.FormatV2, nil)
}

// The different inbound payload shapes.

type CreateCardRequest struct {
	Content    string `json:"content" mapstructure:"content"`
	Column     Column `json:"column" mapstructure:"column"`
	AuthorName string `json:"authorName,omitempty" mapstructure:"authorName"`
}

type UpdateCardRequest struct {
	Id            string  `json:"id" mapstructure:"id"`
	Content       *string `json:"content,omitempty" mapstructure:"content"`
	Column        *Column `json:"column,omitempty" mapstructure:"column"`
	IsHighlighted *bool   `json:"isHighlighted,omitempty" mapstructure:"isHighlighted"`
}

type DeleteCardRequest struct {
	Id string `json:"id" mapstructure:"id"`
}

type VoteRequest struct {
	CardId   string `json:"cardId" mapstructure:"cardId"`
	UserName string `json:"userName,omitempty" mapstructure:"userName"`
}

type ReactionRequest struct {
	CardId   string `json:"cardId" mapstructure:"cardId"`
	Emoji    string `json:"emoji" mapstructure:"emoji"`
	UserName string `json:"userName,omitempty" mapstructure:"userName"`
}

type PollVoteRequest struct {
	PollId string      `json:"pollId" mapstructure:"pollId"`
	Value  interface{} `json:"value" mapstructure:"value"`
}

type PollVoteRemoveRequest struct {
	PollId string `json:"pollId" mapstructure:"pollId"`
}

type RoomSettingsUpdateRequest struct {
	Settings SettingsPatch `json:"settings" mapstructure:"settings"`
}

// Outbound-only payload shapes. Deletions and removals carry the
// pre-mutation entity; these two are the thin exceptions.

type UserLeftPayload struct {
	UserId   string `json:"userId" mapstructure:"userId"`
	UserName string `json:"userName" mapstructure:"userName"`
}

type ReactionRemovedPayload struct {
	CardId   string `json:"cardId" mapstructure:"cardId"`
	Emoji    string `json:"emoji" mapstructure:"emoji"`
	UserId   string `json:"userId" mapstructure:"userId"`
	UserName string `json:"userName" mapstructure:"userName"`
}

type ErrorPayload struct {
	Message string `json:"message" mapstructure:"message"`
}

// DecodePayload decodes a raw payload (as produced by unmarshalling the
// envelope) into the concrete payload type. Decoding is weakly typed and
// re-types RFC3339 timestamp strings into time.Time, so it works for both
// thin request payloads and full entity payloads.
func DecodePayload(payload interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}
