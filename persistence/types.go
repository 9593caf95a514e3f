package persistence

import (
	"context"
	"time"

	"github.com/retroline/retroline/config"
	"github.com/retroline/retroline/types"
)

// RoomTTL is applied (or refreshed) on every snapshot write. Rooms are
// destroyed only by this expiry, never by explicit deletion.
const RoomTTL = 6 * time.Hour

// Store persists one room snapshot per room id.
type Store interface {
	// LoadRoom returns the persisted snapshot, or (nil, nil) when the room
	// has never been saved or has expired.
	LoadRoom(ctx context.Context, roomId string) (*types.Room, error)
	// SaveRoom writes the snapshot and sets/refreshes the RoomTTL expiry.
	SaveRoom(ctx context.Context, room *types.Room) error
	// TTL returns the remaining lifetime of the persisted snapshot.
	TTL(ctx context.Context, roomId string) (time.Duration, error)
	Close() error
}

func roomKey(roomId string) string {
	return "room:" + roomId
}

// NewStore builds the configured store. An empty persistence type yields
// (nil, nil): the caller then runs in-memory-only, which is not an error.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.PersistenceConfig.Type {
	case "redis":
		return NewRedisStore(cfg)
	case "buntdb":
		return NewBuntStore(cfg)
	}
	return nil, nil
}
