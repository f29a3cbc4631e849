package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager holds one session per owner. Sessions are created on first use and
// live until Remove, CloseAll or an idle Sweep.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newOpts  func(owner string) Options
}

// NewManager builds sessions with the options newOpts returns for an owner.
func NewManager(newOpts func(owner string) Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		newOpts:  newOpts,
	}
}

// Get returns the owner's session, creating it if needed.
func (m *Manager) Get(owner string) *Session {
	if owner == "" {
		return nil
	}
	m.mu.RLock()
	s, ok := m.sessions[owner]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[owner]; ok {
		return s
	}
	opts := m.newOpts(owner)
	opts.Owner = owner
	s = New(opts)
	m.sessions[owner] = s
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(owner string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[owner]
	return s, ok
}

// Remove closes and forgets the owner's session.
func (m *Manager) Remove(owner string) {
	m.mu.Lock()
	s, ok := m.sessions[owner]
	delete(m.sessions, owner)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll drives every engine to its exit state and stops all sessions.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for owner, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, owner)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// Sweep closes and forgets sessions whose last command came before cutoff and
// that have no subscribers. It returns how many were evicted.
func (m *Manager) Sweep(cutoff time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for owner, s := range m.sessions {
		if s.LastActive().Before(cutoff) && !s.Watched() {
			idle = append(idle, s)
			delete(m.sessions, owner)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// Janitor sweeps sessions idle for longer than maxIdle every interval until
// ctx is done.
func (m *Manager) Janitor(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Sweep(now.Add(-maxIdle)); n > 0 {
				log.Debug().Int("evicted", n).Int("live", m.Len()).Msg("idle sessions swept")
			}
		}
	}
}
