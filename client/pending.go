package client

import (
	"sync"
	"time"
)

const defaultRevertTimeout = 10 * time.Second

// Pending tracks optimistic mutations that have been applied locally but
// not yet confirmed by a server broadcast. Keys derive from the message
// type, the originating user and the affected entity; the server echo can
// be matched on those even though its timestamp and payload shape differ
// from the request we sent.
type Pending struct {
	mu       sync.Mutex
	timeout  time.Duration
	ops      map[string]*pendingOp
	onExpire func(revert func())
}

type pendingOp struct {
	revert func()
	timer  *time.Timer
}

// NewPending creates an overlay whose unconfirmed operations expire after
// timeout, handing their revert to onExpire.
func NewPending(timeout time.Duration, onExpire func(revert func())) *Pending {
	if timeout <= 0 {
		timeout = defaultRevertTimeout
	}
	return &Pending{
		timeout:  timeout,
		ops:      make(map[string]*pendingOp),
		onExpire: onExpire,
	}
}

func pendingKey(msgType, userId, entityId string) string {
	return msgType + "|" + userId + "|" + entityId
}

// Track registers an optimistic mutation under key. A newer mutation with
// the same key folds the older one in: the server answers a duplicate
// submit with at most one echo, so the single Take (or expiry) must unwind
// every locally applied form. revert must undo the optimistic change
// against the current replica state.
func (p *Pending) Track(key string, revert func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.ops[key]; ok {
		old.timer.Stop()
		newer, older := revert, old.revert
		revert = func() {
			newer()
			older()
		}
	}
	op := &pendingOp{revert: revert}
	op.timer = time.AfterFunc(p.timeout, func() { p.expire(key) })
	p.ops[key] = op
}

func (p *Pending) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ops[key]
	return ok
}

// Take removes the operation registered under key and returns its revert,
// or nil when nothing is pending under that key.
func (p *Pending) Take(key string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	op, ok := p.ops[key]
	if !ok {
		return nil
	}
	op.timer.Stop()
	delete(p.ops, key)
	return op.revert
}

// Len reports the number of unconfirmed operations.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}

func (p *Pending) expire(key string) {
	p.mu.Lock()
	op, ok := p.ops[key]
	if ok {
		delete(p.ops, key)
	}
	p.mu.Unlock()
	if ok && p.onExpire != nil {
		p.onExpire(op.revert)
	}
}
