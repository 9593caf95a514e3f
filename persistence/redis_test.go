package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// fakeRedis implements redisCommands in memory. dropExpiry simulates a
// server that stores the SET but ends up with a persistent key, the
// branch SaveRoom must repair.
type fakeRedis struct {
	data        map[string]string
	ttls        map[string]time.Duration
	dropExpiry  bool
	expireCalls int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	if f.dropExpiry {
		f.ttls[key] = -time.Second
	} else {
		f.ttls[key] = expiration
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) TTL(_ context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(f.ttls[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expireCalls++
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := &RedisStore{cli: newFakeRedis()}
	ctx := context.Background()
	room := testRoom()

	assert.NoError(t, store.SaveRoom(ctx, room))

	loaded, err := store.LoadRoom(ctx, room.Id)
	assert.NoError(t, err)
	if diff := cmp.Diff(room, loaded); diff != "" {
		t.Errorf("loaded room differs (-want +got):\n%s", diff)
	}

	ttl, err := store.TTL(ctx, room.Id)
	assert.NoError(t, err)
	assert.Equal(t, RoomTTL, ttl)
}

func TestRedisStoreAbsentRoom(t *testing.T) {
	store := &RedisStore{cli: newFakeRedis()}

	room, err := store.LoadRoom(context.Background(), "never-saved")
	assert.NoError(t, err)
	assert.Nil(t, room)
}

func TestRedisStoreReappliesDroppedExpiry(t *testing.T) {
	fake := newFakeRedis()
	fake.dropExpiry = true
	store := &RedisStore{cli: fake}

	assert.NoError(t, store.SaveRoom(context.Background(), testRoom()))
	assert.Equal(t, 1, fake.expireCalls)

	ttl, err := store.TTL(context.Background(), "retro-1")
	assert.NoError(t, err)
	assert.Equal(t, RoomTTL, ttl)
}

func TestRedisStoreKeepsHealthyExpiry(t *testing.T) {
	fake := newFakeRedis()
	store := &RedisStore{cli: fake}

	assert.NoError(t, store.SaveRoom(context.Background(), testRoom()))
	assert.Equal(t, 0, fake.expireCalls)
}
