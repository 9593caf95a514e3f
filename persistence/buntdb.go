package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/retroline/retroline/config"
	"github.com/retroline/retroline/types"
	"github.com/tidwall/buntdb"
)

// BuntStore is the file-backed snapshot store. BuntDB honors TTL-on-write
// natively via SetOptions, so no expiry probe is needed here.
type BuntStore struct {
	db *buntdb.DB
}

func NewBuntStore(cfg *config.Config) (Store, error) {
	path := cfg.PersistenceConfig.BuntDBConfig.Path
	if path == "" {
		return nil, fmt.Errorf("buntdb persistence selected but no path configured")
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func (s *BuntStore) LoadRoom(_ context.Context, roomId string) (*types.Room, error) {
	room := &types.Room{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(roomKey(roomId))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), room)
	})
	if err == buntdb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *BuntStore) SaveRoom(_ context.Context, room *types.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(roomKey(room.Id), string(data), &buntdb.SetOptions{
			Expires: true,
			TTL:     RoomTTL,
		})
		return err
	})
}

func (s *BuntStore) TTL(_ context.Context, roomId string) (time.Duration, error) {
	var ttl time.Duration
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		ttl, err = tx.TTL(roomKey(roomId))
		return err
	})
	return ttl, err
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
