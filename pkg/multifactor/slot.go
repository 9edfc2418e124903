// Package multifactor carries a pending login between the password
// step and the second-factor verification step.
package multifactor

import "sync"

// State is the hand-off payload: the credentials that triggered the
// challenge and the challenge token the verification step must present.
type State struct {
	Email          string
	Password       string
	ChallengeToken string
}

// Slot holds at most one State. It is shared, not per-request: a new
// login overwrites whatever challenge was pending.
type Slot struct {
	mutex sync.Mutex
	state *State
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Set stores state, unconditionally replacing any pending value.
func (s *Slot) Set(state *State) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = state
}

// Pop returns the pending state and empties the slot in the same step.
// Consume-once: a second Pop returns nil, so a dismissed challenge can
// never be replayed by a later visit to the verification screen.
func (s *Slot) Pop() *State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	state := s.state
	s.state = nil
	return state
}
