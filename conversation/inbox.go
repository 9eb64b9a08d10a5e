////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import "sync"

// inbox is the unbounded FIFO of work for the controller goroutine. post
// never blocks.
type inbox struct {
	queue  []func()
	signal chan struct{}
	closed bool
	mux    sync.Mutex
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

// post appends fn. Returns false once the inbox is closed.
func (b *inbox) post(fn func()) bool {
	b.mux.Lock()
	if b.closed {
		b.mux.Unlock()
		return false
	}
	b.queue = append(b.queue, fn)
	b.mux.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns everything posted so far.
func (b *inbox) drain() []func() {
	b.mux.Lock()
	defer b.mux.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

// close rejects later posts and returns the work that was still queued.
func (b *inbox) close() []func() {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.closed = true
	q := b.queue
	b.queue = nil
	return q
}
