package infoshare

import (
	"github.com/google/uuid"
	"sync"
	"time"
)

// categoryPickerTimeout is how long a category picker stays usable
var categoryPickerTimeout = 3 * time.Minute

// pickerSession is one outstanding category picker, waiting on
// a selection.
type pickerSession struct {
	id        string
	handler   InteractionHandler
	createdAt time.Time
	timer     *time.Timer
}

// componentStore tracks outstanding pickers. Each entry is removed when
// it's selected or when it expires, whichever happens first.
type componentStore struct {
	mu       sync.Mutex
	sessions map[string]*pickerSession
	timeout  time.Duration
	onExpire func(s *pickerSession)
}

func newComponentStore(
	timeout time.Duration,
	onExpire func(s *pickerSession),
) *componentStore {
	return &componentStore{
		sessions: map[string]*pickerSession{},
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Add registers a picker for the interaction that created it, returning
// the picker's ID.
func (s *componentStore) Add(handler InteractionHandler) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := &pickerSession{
		id:        uuid.NewString(),
		handler:   handler,
		createdAt: time.Now(),
	}
	ps.timer = time.AfterFunc(s.timeout, func() { s.expire(ps.id) })
	s.sessions[ps.id] = ps
	return ps.id
}

// Take removes and returns the picker with the given ID. It returns
// false if the picker was never registered, already used, or expired.
func (s *componentStore) Take(id string) (*pickerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	ps.timer.Stop()
	delete(s.sessions, id)
	return ps, true
}

func (s *componentStore) expire(id string) {
	s.mu.Lock()
	ps, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok && s.onExpire != nil {
		s.onExpire(ps)
	}
}

func (s *componentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close discards all outstanding pickers without running onExpire
func (s *componentStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ps := range s.sessions {
		ps.timer.Stop()
		delete(s.sessions, id)
	}
}
