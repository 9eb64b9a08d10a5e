////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package reaction holds the settle timers of optimistic reactions. A local
// reaction only becomes visible after a short delay, and an authoritative
// reaction update arriving first cancels it.
package reaction

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// DefaultSettleDelay is the delay applied when none is configured.
const DefaultSettleDelay = time.Second

// Key identifies the settle timer of one message in one conversation.
type Key struct {
	MessageID int64
	PeerID    int64
}

// PostFunc runs fn on the owning goroutine of the conversation.
type PostFunc func(fn func())

type pending struct {
	timer      *time.Timer
	generation uint64
}

// Synchronizer owns the settle timers of one conversation.
type Synchronizer struct {
	delay time.Duration
	post  PostFunc

	timers     map[Key]*pending
	generation uint64
	closed     bool
	mux        sync.Mutex
}

// NewSynchronizer returns a Synchronizer that posts fired timers through
// post. A non-positive delay selects DefaultSettleDelay.
func NewSynchronizer(delay time.Duration, post PostFunc) *Synchronizer {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Synchronizer{
		delay:  delay,
		post:   post,
		timers: make(map[Key]*pending),
	}
}

// Schedule arms the settle timer for key, replacing any timer already armed
// for it. apply runs on the owning goroutine unless the timer is cancelled
// before it gets there.
func (s *Synchronizer) Schedule(key Key, apply func()) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return
	}
	if old, exists := s.timers[key]; exists {
		old.timer.Stop()
	}

	s.generation++
	gen := s.generation
	p := &pending{generation: gen}
	p.timer = time.AfterFunc(s.delay, func() {
		s.post(func() {
			if s.take(key, gen) {
				jww.TRACE.Printf("[Reaction] Settled %+v", key)
				apply()
			}
		})
	})
	s.timers[key] = p
}

// take removes the timer if it is still the one with the generation. Returns
// false if it was cancelled or replaced in the meantime.
func (s *Synchronizer) take(key Key, gen uint64) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	p, exists := s.timers[key]
	if !exists || p.generation != gen {
		return false
	}
	delete(s.timers, key)
	return true
}

// Cancel stops the timer for key. Returns true if one was pending.
func (s *Synchronizer) Cancel(key Key) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	p, exists := s.timers[key]
	if !exists {
		return false
	}
	p.timer.Stop()
	delete(s.timers, key)
	jww.DEBUG.Printf("[Reaction] Cancelled settle timer %+v", key)
	return true
}

// Pending returns true if a timer is armed for key.
func (s *Synchronizer) Pending(key Key) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, exists := s.timers[key]
	return exists
}

// Close cancels every timer. Later calls to Schedule do nothing.
func (s *Synchronizer) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
	s.closed = true
}
