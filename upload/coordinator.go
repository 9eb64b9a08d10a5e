////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package upload tracks pending attachment uploads. It runs one upload at a
// time through an injected Transport, persists its queue, and reports every
// change to subscribed listeners. Uploads are scoped to their destination and
// outlive any conversation that observes them.
package upload

import (
	"context"
	"sync"

	"github.com/golang-collections/collections/set"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/xx_network/primitives/netTime"
	"go.uber.org/ratelimit"
)

// Error messages.
const (
	emptyPathErr     = "upload intent %d has no file path"
	tooLargeErr      = "upload intent %d is %d bytes, more than the %d allowed"
	unknownUploadErr = "no upload with ID %s"
	retryStatusErr   = "upload %s is %s, only failed uploads can be retried"
)

// ErrUnknownUpload is returned for IDs that are not tracked.
var ErrUnknownUpload = errors.New("unknown upload")

// active is the upload currently handed to the transport.
type active struct {
	id     ID
	cancel context.CancelFunc

	// Latest progress reported by the transport, delivered by the progress
	// thread.
	progress  int
	delivered int
}

// Coordinator is the upload bookkeeping service. It is safe for concurrent
// use.
type Coordinator struct {
	params    Params
	transport Transport
	kv        *versioned.KV

	queue     []*Upload
	completed []*Completion
	current   *active
	listeners *set.Set

	ctx      context.Context
	stop     context.CancelFunc
	progress chan struct{}
	mux      sync.Mutex
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	listener Listener
}

// NewCoordinator loads the persisted queue from kv and returns a coordinator.
// Uploads that were running when the queue was saved go back to Queued.
func NewCoordinator(kv *versioned.KV, transport Transport, params Params) (
	*Coordinator, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		params:    params,
		transport: transport,
		kv:        kv.Prefix(storePrefix),
		listeners: set.New(),
		ctx:       ctx,
		stop:      cancel,
		progress:  make(chan struct{}, 1),
	}
	if err := c.load(); err != nil {
		cancel()
		return nil, err
	}
	if err := c.loadCompleted(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

// Start launches the progress reporting thread and the first queued upload.
func (c *Coordinator) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle("UploadCoordinator")
	go c.progressThread(stop)

	c.mux.Lock()
	c.startNext()
	c.mux.Unlock()
	return stop
}

// Subscribe registers a listener.
func (c *Coordinator) Subscribe(l Listener) *Subscription {
	c.mux.Lock()
	defer c.mux.Unlock()
	sub := &Subscription{listener: l}
	c.listeners.Insert(sub)
	return sub
}

// Unsubscribe removes a listener registered with Subscribe.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.listeners.Remove(sub)
}

func (c *Coordinator) each(fn func(l Listener)) {
	c.listeners.Do(func(i interface{}) {
		fn(i.(*Subscription).listener)
	})
}

// Enqueue adds uploads for the intents and returns their IDs in order.
func (c *Coordinator) Enqueue(intents []Intent) ([]ID, error) {
	for i, in := range intents {
		if in.Path == "" {
			return nil, errors.Errorf(emptyPathErr, i)
		}
		if c.params.MaxSize > 0 && in.Size > c.params.MaxSize {
			return nil, errors.Errorf(tooLargeErr, i, in.Size, c.params.MaxSize)
		}
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	ids := make([]ID, len(intents))
	added := make([]Upload, len(intents))
	for i, in := range intents {
		u := &Upload{
			ID:          ID(uuid.NewString()),
			AccountID:   in.AccountID,
			Destination: in.Destination,
			Path:        in.Path,
			Size:        in.Size,
			Status:      Queued,
			Created:     netTime.Now(),
		}
		c.queue = append(c.queue, u)
		ids[i] = u.ID
		added[i] = *u
	}
	jww.DEBUG.Printf("[Upload] Enqueued %d uploads", len(ids))

	c.save()
	c.each(func(l Listener) { l.OnAdded(added) })
	c.startNext()
	return ids, nil
}

// Cancel removes the upload, aborting it if it is running.
func (c *Coordinator) Cancel(id ID) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.find(id) == nil {
		return errors.WithMessagef(ErrUnknownUpload, unknownUploadErr, id)
	}
	c.remove(func(u *Upload) bool { return u.ID == id })
	c.startNext()
	return nil
}

// CancelAll removes every upload of the account matching the destination and
// returns their IDs.
func (c *Coordinator) CancelAll(accountID int64, dest Destination) []ID {
	c.mux.Lock()
	defer c.mux.Unlock()
	ids := c.remove(func(u *Upload) bool {
		return u.AccountID == accountID && dest.Matches(u.Destination)
	})
	c.startNext()
	return ids
}

// Retry moves a failed upload back to the queue.
func (c *Coordinator) Retry(id ID) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	u := c.find(id)
	if u == nil {
		return errors.WithMessagef(ErrUnknownUpload, unknownUploadErr, id)
	} else if u.Status != Error {
		return errors.Errorf(retryStatusErr, id, u.Status)
	}
	u.Status = Queued
	u.ErrorText = ""
	u.Progress = 0
	c.save()
	changed := *u
	c.each(func(l Listener) { l.OnStatusChanged(changed) })
	c.startNext()
	return nil
}

// Get returns the uploads of the account matching the destination in queue
// order.
func (c *Coordinator) Get(accountID int64, dest Destination) []Upload {
	c.mux.Lock()
	defer c.mux.Unlock()
	var out []Upload
	for _, u := range c.queue {
		if u.AccountID == accountID && dest.Matches(u.Destination) {
			out = append(out, *u)
		}
	}
	return out
}

// Lookup returns the upload with the ID.
func (c *Coordinator) Lookup(id ID) (Upload, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if u := c.find(id); u != nil {
		return *u, true
	}
	return Upload{}, false
}

// Current returns the upload handed to the transport, if any.
func (c *Coordinator) Current() (Upload, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.current == nil {
		return Upload{}, false
	}
	if u := c.find(c.current.id); u != nil {
		return *u, true
	}
	return Upload{}, false
}

// Len returns the number of tracked uploads.
func (c *Coordinator) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.queue)
}

// Close aborts the running upload without removing it from the queue, so it
// restarts on the next load.
func (c *Coordinator) Close() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.stop()
	c.current = nil
}

func (c *Coordinator) find(id ID) *Upload {
	for _, u := range c.queue {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// remove drops every upload matching fn, aborting the running one if it
// matches, and notifies listeners. Must be called with the lock held.
func (c *Coordinator) remove(match func(u *Upload) bool) []ID {
	var ids []ID
	kept := c.queue[:0]
	for _, u := range c.queue {
		if !match(u) {
			kept = append(kept, u)
			continue
		}
		if c.current != nil && c.current.id == u.ID {
			c.current.cancel()
			c.current = nil
			u.Status = Cancelling
			cancelling := *u
			c.each(func(l Listener) { l.OnStatusChanged(cancelling) })
		}
		ids = append(ids, u.ID)
	}
	for i := len(kept); i < len(c.queue); i++ {
		c.queue[i] = nil
	}
	c.queue = kept
	if len(ids) == 0 {
		return nil
	}

	jww.DEBUG.Printf("[Upload] Removed uploads %v", ids)
	c.save()
	c.each(func(l Listener) { l.OnRemoved(ids) })
	return ids
}

// startNext hands the first queued upload to the transport if nothing is
// running. Must be called with the lock held.
func (c *Coordinator) startNext() {
	if c.current != nil || c.ctx.Err() != nil {
		return
	}
	var next *Upload
	for _, u := range c.queue {
		if u.Status == Queued {
			next = u
			break
		}
	}
	if next == nil {
		return
	}

	next.Status = Uploading
	next.ErrorText = ""
	ctx, cancel := context.WithCancel(c.ctx)
	c.current = &active{id: next.ID, cancel: cancel}
	started := *next
	c.each(func(l Listener) { l.OnStatusChanged(started) })
	jww.DEBUG.Printf("[Upload] Starting %s (%s)", started.ID, started.Path)

	go c.run(ctx, started)
}

// run performs the upload and records its outcome.
func (c *Coordinator) run(ctx context.Context, u Upload) {
	result, err := c.transport.Upload(ctx, u, func(percent int) {
		c.reportProgress(u.ID, percent)
	})

	c.mux.Lock()
	defer c.mux.Unlock()
	if c.current == nil || c.current.id != u.ID {
		// Cancelled while running
		return
	}
	c.current.cancel()
	c.current = nil

	stored := c.find(u.ID)
	if stored == nil {
		c.startNext()
		return
	}

	if err != nil {
		jww.WARN.Printf("[Upload] Upload %s failed: %+v", u.ID, err)
		stored.Status = Error
		stored.ErrorText = err.Error()
		c.save()
		failed := *stored
		c.each(func(l Listener) { l.OnStatusChanged(failed) })
	} else {
		stored.Progress = 100
		done := *stored
		kept := c.queue[:0]
		for _, q := range c.queue {
			if q.ID != u.ID {
				kept = append(kept, q)
			}
		}
		c.queue = kept
		c.save()
		c.keep(done, result)
		jww.DEBUG.Printf("[Upload] Upload %s finished", u.ID)
		c.each(func(l Listener) { l.OnResult(done, result) })
	}
	c.startNext()
}

// reportProgress records the latest progress of the running upload and wakes
// the progress thread.
func (c *Coordinator) reportProgress(id ID, percent int) {
	c.mux.Lock()
	if c.current != nil && c.current.id == id {
		c.current.progress = percent
		if u := c.find(id); u != nil {
			u.Progress = percent
		}
	}
	c.mux.Unlock()

	select {
	case c.progress <- struct{}{}:
	default:
	}
}

// progressThread delivers progress to listeners no faster than the
// configured rate.
func (c *Coordinator) progressThread(stop *stoppable.Single) {
	rate := c.params.ProgressRate
	if rate <= 0 {
		rate = GetDefaultParams().ProgressRate
	}
	rl := ratelimit.New(rate, ratelimit.WithoutSlack)

	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("[Upload] Stopping progress thread")
			c.Close()
			stop.ToStopped()
			return
		case <-c.progress:
			rl.Take()
			c.mux.Lock()
			if cur := c.current; cur != nil && cur.progress != cur.delivered {
				cur.delivered = cur.progress
				id, percent := cur.id, cur.progress
				c.each(func(l Listener) { l.OnProgress(id, percent) })
			}
			c.mux.Unlock()
		}
	}
}

// NopListener implements Listener with no-ops. Embed it to observe a subset
// of the callbacks.
type NopListener struct{}

func (NopListener) OnAdded([]Upload)                    {}
func (NopListener) OnRemoved([]ID)                      {}
func (NopListener) OnProgress(ID, int)                  {}
func (NopListener) OnStatusChanged(Upload)              {}
func (NopListener) OnResult(Upload, message.Attachment) {}
