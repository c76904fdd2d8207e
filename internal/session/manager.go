package session

import (
	"sync"
	"time"
)

// Manager serializes turns per user id. Turns for the same user run one at a
// time; different users run in parallel.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
	holders  int // goroutines holding or waiting on mu
}

func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*userLock),
	}
}

// WithLock executes fn while holding the per-user mutex. The mutex is released
// on every exit path, including a panic in fn.
func (m *Manager) WithLock(userID string, fn func() error) error {
	m.mu.Lock()
	ul, ok := m.locks[userID]
	if !ok {
		ul = &userLock{}
		m.locks[userID] = ul
	}
	ul.holders++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		ul.holders--
		ul.lastUsed = time.Now()
		m.mu.Unlock()
	}()

	ul.mu.Lock()
	defer ul.mu.Unlock()
	return fn()
}

// Cleanup removes idle locks not used within maxAge to prevent memory leaks.
// Locks with a holder or waiter are never removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, ul := range m.locks {
		if ul.holders == 0 && now.Sub(ul.lastUsed) > maxAge {
			delete(m.locks, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked user locks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
