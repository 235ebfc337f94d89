package expr

import (
	"maps"
	"sync"
)

// StateStore holds named values readable by FloatState and StringState
// expressions. Listeners are notified synchronously, after the store's lock
// is released, on the goroutine that changed the value.
type StateStore struct {
	mu        sync.Mutex
	values    map[string]Value
	listeners map[string]*listenerSet[struct{}]
}

// NewStateStore creates a store seeded with initial (which is copied).
func NewStateStore(initial map[string]Value) *StateStore {
	values := make(map[string]Value, len(initial))
	maps.Copy(values, initial)
	return &StateStore{
		values:    values,
		listeners: make(map[string]*listenerSet[struct{}]),
	}
}

// Get returns the value for key.
func (s *StateStore) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns a copy of all values.
func (s *StateStore) Snapshot() map[string]Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Set stores v under key and notifies key listeners if the value changed.
func (s *StateStore) Set(key string, v Value) {
	s.SetAll(map[string]Value{key: v})
}

// SetAll stores every entry, then notifies the listeners of each changed
// key once.
func (s *StateStore) SetAll(values map[string]Value) {
	s.mu.Lock()
	var fire []func(struct{})
	for k, v := range values {
		if old, ok := s.values[k]; ok && old == v {
			continue
		}
		s.values[k] = v
		if l := s.listeners[k]; l != nil {
			fire = append(fire, l.snapshot()...)
		}
	}
	s.mu.Unlock()

	for _, fn := range fire {
		fn(struct{}{})
	}
}

// Remove deletes keys and notifies their listeners.
func (s *StateStore) Remove(keys ...string) {
	s.mu.Lock()
	var fire []func(struct{})
	for _, k := range keys {
		if _, ok := s.values[k]; !ok {
			continue
		}
		delete(s.values, k)
		if l := s.listeners[k]; l != nil {
			fire = append(fire, l.snapshot()...)
		}
	}
	s.mu.Unlock()

	for _, fn := range fire {
		fn(struct{}{})
	}
}

// Subscribe registers fn to run whenever key changes or is removed.
// The returned function unsubscribes and is safe to call more than once.
func (s *StateStore) Subscribe(key string, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listeners[key]
	if l == nil {
		l = &listenerSet[struct{}]{}
		s.listeners[key] = l
	}
	id := l.add(func(struct{}) { fn() })
	return once(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		l.remove(id)
		if l.len() == 0 && s.listeners[key] == l {
			delete(s.listeners, key)
		}
	})
}

// ListenerCount returns the number of listeners registered for key.
func (s *StateStore) ListenerCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.listeners[key]; l != nil {
		return l.len()
	}
	return 0
}
