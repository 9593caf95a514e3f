package types

import "time"

// User is a participant in a room. The id is supplied by the client and is
// durable across reconnects: a new connection presenting a known id resolves
// to the same User and only refreshes LastSeen.
type User struct {
	Id            string    `json:"id" mapstructure:"id"`
	Name          string    `json:"name" mapstructure:"name"`
	IsFacilitator bool      `json:"isFacilitator" mapstructure:"isFacilitator"`
	JoinedAt      time.Time `json:"joinedAt" mapstructure:"joinedAt"`
	LastSeen      time.Time `json:"lastSeen" mapstructure:"lastSeen"`
}
