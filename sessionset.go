// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"fmt"
)

// ErrPortSlot is returned when removing slot 0, which always holds the port.
var ErrPortSlot = errors.New("spi: slot 0 holds the port handle")

// SessionSet is the bounded handle table of one ServerLoop. Slot 0 is the
// listening port for the set's whole life; client sessions follow it in
// acceptance order. The set also remembers the session last dispatched, which
// the next wait replies to.
type SessionSet struct {
	handles     []Handle
	target      Handle
	targetIndex int
}

// NewSessionSet returns a set holding port and room for capacity-1 clients.
// capacity is clamped to at least 2.
func NewSessionSet(port Handle, capacity int) *SessionSet {
	if capacity < 2 {
		capacity = 2
	}
	handles := make([]Handle, 1, capacity)
	handles[0] = port
	return &SessionSet{handles: handles, targetIndex: -1}
}

// Port returns the listening handle.
func (s *SessionSet) Port() Handle { return s.handles[0] }

// Len returns the number of live handles including the port.
func (s *SessionSet) Len() int { return len(s.handles) }

// Cap returns the bound on Len.
func (s *SessionSet) Cap() int { return cap(s.handles) }

// Clients returns the number of live client sessions.
func (s *SessionSet) Clients() int { return len(s.handles) - 1 }

// Idle reports whether only the port is live.
func (s *SessionSet) Idle() bool { return len(s.handles) == 1 }

// Full reports whether another session would exceed the bound.
func (s *SessionSet) Full() bool { return len(s.handles) == cap(s.handles) }

// Handles returns the live handles, port first. The slice is only valid until
// the next Accept or Remove.
func (s *SessionSet) Handles() []Handle { return s.handles }

// At returns the handle in slot i.
func (s *SessionSet) At(i int) Handle { return s.handles[i] }

// Accept appends h. It reports false, leaving the set unchanged, when the
// set is full.
func (s *SessionSet) Accept(h Handle) bool {
	if s.Full() {
		return false
	}
	s.handles = append(s.handles, h)
	return true
}

// Remove drops the session in slot i and returns it. Later sessions shift
// down one slot. A reply target in slot i is forgotten.
func (s *SessionSet) Remove(i int) (Handle, error) {
	if i == 0 {
		return 0, ErrPortSlot
	}
	if i < 0 || i >= len(s.handles) {
		return 0, fmt.Errorf("spi: slot %d out of range [1,%d)", i, len(s.handles))
	}
	h := s.handles[i]
	s.handles = append(s.handles[:i], s.handles[i+1:]...)
	switch {
	case s.targetIndex == i:
		s.ClearTarget()
	case s.targetIndex > i:
		s.targetIndex--
	}
	return h, nil
}

// SetTarget remembers slot i as the next reply target.
func (s *SessionSet) SetTarget(i int) {
	s.target = s.handles[i]
	s.targetIndex = i
}

// Target returns the reply target and its slot, or (0, -1) when there is
// none.
func (s *SessionSet) Target() (Handle, int) { return s.target, s.targetIndex }

// ClearTarget forgets the reply target.
func (s *SessionSet) ClearTarget() {
	s.target = 0
	s.targetIndex = -1
}
