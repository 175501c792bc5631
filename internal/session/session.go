// Package session tracks who is signed in and notifies subscribers when that changes.
package session

import (
	"sort"
	"sync"
)

// Identity is the signed-in user.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// State holds the current identity together with a loading flag and the last
// authentication error message.
type State struct {
	mu        sync.RWMutex
	identity  *Identity
	loading   bool
	err       string
	nextID    int
	listeners map[int]func(*Identity)
}

// NewState returns a signed-out state.
func NewState() *State {
	return &State{listeners: make(map[int]func(*Identity))}
}

// Identity returns a copy of the signed-in user or nil.
func (s *State) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// UserID returns the signed-in user's id or "".
func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}

func (s *State) IsAuthenticated() bool {
	return s.UserID() != ""
}

func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *State) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// Error returns the last authentication error message.
func (s *State) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetError records an authentication failure and ends loading.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	s.err = msg
	s.loading = false
	s.mu.Unlock()
}

// SetIdentity signs a user in, clears the error and notifies subscribers when the
// user changed. A nil identity signs out.
func (s *State) SetIdentity(id *Identity) {
	s.mu.Lock()
	changed := !sameIdentity(s.identity, id)
	if id == nil {
		s.identity = nil
	} else {
		copied := *id
		s.identity = &copied
		s.err = ""
	}
	s.loading = false
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, cb := range listeners {
		if id == nil {
			cb(nil)
			continue
		}
		copied := *id
		cb(&copied)
	}
}

// Clear signs out.
func (s *State) Clear() {
	s.SetIdentity(nil)
}

// OnChange registers cb for identity changes and returns a func that removes it.
// Callbacks run in registration order outside the state lock.
func (s *State) OnChange(cb func(*Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *State) snapshotLocked() []func(*Identity) {
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]func(*Identity), 0, len(keys))
	for _, k := range keys {
		out = append(out, s.listeners[k])
	}
	return out
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
