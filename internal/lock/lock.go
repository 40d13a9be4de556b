package lock

import (
	"context"
	"sync"
)

// Locker serializes work on one key, typically a complaint id.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// MutexMap is an in-process Locker with one slot per key. A slot lives only
// while some caller holds or waits on it.
type MutexMap struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		slots: make(map[string]*slot),
	}
}

func (m *MutexMap) Lock(ctx context.Context, key string) (func(), error) {
	s := m.acquire(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}, nil
}

func (m *MutexMap) acquire(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *MutexMap) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Len reports how many keys currently have a slot.
func (m *MutexMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
