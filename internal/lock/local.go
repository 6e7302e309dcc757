package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is the single-instance Locker: one token channel per key.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	token   chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		s.token <- struct{}{}
		l.slots[key] = s
	}
	s.waiters++
	return s
}

func (l *LocalLocker) dropSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 && len(s.token) == 1 {
		delete(l.slots, key)
	}
}

// Obtain waits at most ttl for the key. Local leases do not expire; the
// holder must Release.
func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	s := l.acquireSlot(key)

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case <-s.token:
		return &localLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.dropSlot(key, s)
		return nil, ctx.Err()
	case <-timer.C:
		l.dropSlot(key, s)
		return nil, ErrNotObtained
	}
}

type localLease struct {
	locker *LocalLocker
	key    string
	slot   *slot
	once   sync.Once
}

func (r *localLease) Release(_ context.Context) error {
	r.once.Do(func() {
		r.slot.token <- struct{}{}
		r.locker.dropSlot(r.key, r.slot)
	})
	return nil
}
