package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/retroline/retroline/config"
	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/types"
)

// redisCommands is the slice of the go-redis client the store uses, as a
// seam for tests to stand in a fake without a server.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps room snapshots as JSON strings under room:<id> keys.
type RedisStore struct {
	cli    redisCommands
	closer func() error
}

// NewRedisStore connects to the configured Redis server and pings it to
// make sure the connection works.
func NewRedisStore(cfg *config.Config) (Store, error) {
	rc := cfg.PersistenceConfig.RedisConfig
	if rc.Addr == "" {
		return nil, fmt.Errorf("redis persistence selected but no addr configured")
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{cli: cli, closer: cli.Close}, nil
}

func (s *RedisStore) LoadRoom(ctx context.Context, roomId string) (*types.Room, error) {
	val, err := s.cli.Get(ctx, roomKey(roomId)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	room := &types.Room{}
	if err := json.Unmarshal([]byte(val), room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	return room, nil
}

func (s *RedisStore) SaveRoom(ctx context.Context, room *types.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	key := roomKey(room.Id)
	if err := s.cli.Set(ctx, key, data, RoomTTL).Err(); err != nil {
		return fmt.Errorf("set room: %w", err)
	}
	// SET with expiry should always leave a TTL behind; probe it anyway and
	// re-apply once if the key ended up persistent.
	ttl, err := s.cli.TTL(ctx, key).Result()
	if err != nil {
		globals.AppLogger.Error("could not probe room ttl", "room", room.Id, "error", err)
		return nil
	}
	if ttl < 0 {
		globals.AppLogger.Warn("room key has no expiry, re-applying", "room", room.Id)
		if err := s.cli.Expire(ctx, key, RoomTTL).Err(); err != nil {
			return fmt.Errorf("expire room: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, roomId string) (time.Duration, error) {
	return s.cli.TTL(ctx, roomKey(roomId)).Result()
}

func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
