package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingTakeReturnsRevertOnce(t *testing.T) {
	p := NewPending(time.Minute, nil)
	called := false
	p.Track("vote_added|me|c1", func() { called = true })
	assert.Equal(t, 1, p.Len())

	revert := p.Take("vote_added|me|c1")
	assert.NotNil(t, revert)
	revert()
	assert.True(t, called)
	assert.Equal(t, 0, p.Len())

	assert.Nil(t, p.Take("vote_added|me|c1"))
	assert.Nil(t, p.Take("never-tracked"))
}

func TestPendingTrackFoldsSupersededRevert(t *testing.T) {
	p := NewPending(time.Minute, nil)
	order := make([]string, 0, 2)
	p.Track("k", func() { order = append(order, "first") })
	p.Track("k", func() { order = append(order, "second") })
	assert.Equal(t, 1, p.Len())

	// one take unwinds both, newest first
	p.Take("k")()
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestPendingExpiryHandsOutRevert(t *testing.T) {
	var mu sync.Mutex
	expired := 0
	p := NewPending(20*time.Millisecond, func(revert func()) {
		mu.Lock()
		defer mu.Unlock()
		revert()
		expired++
	})

	reverted := false
	p.Track("k", func() { reverted = true })

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return expired == 1 && reverted
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Take("k"))
}

func TestPendingTakeBeatsExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	p := NewPending(30*time.Millisecond, func(func()) { expired <- struct{}{} })
	p.Track("k", func() {})
	assert.NotNil(t, p.Take("k"))

	select {
	case <-expired:
		t.Fatal("expiry fired after take")
	case <-time.After(80 * time.Millisecond):
	}
}
