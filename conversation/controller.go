////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package conversation runs one open conversation. A Controller owns the
// message store, draft, edit session and reaction timers of its peer and
// serialises every change to them on a single goroutine.
package conversation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang-collections/collections/set"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/draft"
	"gitlab.com/elixxir/chatsync/emoji"
	"gitlab.com/elixxir/chatsync/encryption"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/messageStore"
	"gitlab.com/elixxir/chatsync/reaction"
	"gitlab.com/elixxir/chatsync/reconciler"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/elixxir/chatsync/upload"
	"go.uber.org/ratelimit"
)

// closeTimeout bounds how long Close waits for the controller goroutine.
const closeTimeout = 5 * time.Second

// Services are the collaborators shared by every conversation of an account.
// KV and Network are required.
type Services struct {
	KV         *versioned.KV
	Backend    messageStore.Backend
	Network    Network
	Uploads    *upload.Coordinator
	Encryption *encryption.Negotiator
	Reactions  *emoji.Catalog
	Reporter   event.Reporter
	Metrics    *Metrics
}

// Notification tells subscribers that state changed. The flags are hints;
// Snapshot returns the authoritative state.
type Notification struct {
	Messages     bool
	Conversation bool
	Draft        bool
	Uploads      bool
}

func (n Notification) empty() bool {
	return !n.Messages && !n.Conversation && !n.Draft && !n.Uploads
}

func (n Notification) merge(o Notification) Notification {
	return Notification{
		Messages:     n.Messages || o.Messages,
		Conversation: n.Conversation || o.Conversation,
		Draft:        n.Draft || o.Draft,
		Uploads:      n.Uploads || o.Uploads,
	}
}

// Subscription delivers notifications on C until Unsubscribe or Close.
type Subscription struct {
	C  <-chan Notification
	ch chan Notification
}

// Snapshot is a copy of the conversation state.
type Snapshot struct {
	Messages     []message.Message
	Conversation message.Conversation
	Draft        draft.Draft

	// Editing is the working copy of the open edit, if any.
	Editing *message.Message

	// Uploads are the uploads of the draft and of the open edit.
	Uploads    []upload.Upload
	Encryption encryption.Settings
}

// Controller is one open conversation.
type Controller struct {
	peer     message.Peer
	params   Params
	services Services
	reporter event.Reporter
	catalog  *emoji.Catalog

	// Owned by the controller goroutine
	store       *messageStore.Store
	reconciler  *reconciler.Reconciler
	draft       *draft.Session
	edit        *draft.EditSession
	reactions   *reaction.Synchronizer
	uploadDest  map[upload.ID]int64
	dispatching bool
	pending     Notification

	uploadSub *upload.Subscription
	limiter   ratelimit.Limiter

	inbox  *inbox
	ctx    context.Context
	cancel context.CancelFunc
	stop   *stoppable.Single
	closed chan struct{}

	subscribers *set.Set
	subMux      sync.Mutex
}

// Open loads the conversation with the peer and starts its goroutine.
func Open(peer message.Peer, services Services, params Params) (
	*Controller, error) {
	if services.KV == nil || services.Network == nil {
		return nil, errors.New("conversation requires a KV and a Network")
	}
	reporter := services.Reporter
	if reporter == nil {
		reporter = event.LogReporter{}
	}
	catalog := services.Reactions
	if catalog == nil {
		catalog = emoji.DefaultCatalog()
	}
	rate := params.SendRate
	if rate <= 0 {
		rate = GetDefaultParams().SendRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	name := "Conversation:" + strconv.FormatInt(peer.ID, 10)
	c := &Controller{
		peer:        peer,
		params:      params,
		services:    services,
		reporter:    reporter,
		catalog:     catalog,
		uploadDest:  make(map[upload.ID]int64),
		limiter:     ratelimit.New(rate),
		inbox:       newInbox(),
		ctx:         ctx,
		cancel:      cancel,
		stop:        stoppable.NewSingle(name),
		closed:      make(chan struct{}),
		subscribers: set.New(),
	}

	c.store = messageStore.New(peer, services.Backend, reporter,
		services.Metrics.persistFailed)
	c.store.Load()
	c.reactions = reaction.NewSynchronizer(params.ReactionSettleDelay,
		func(fn func()) { c.post(fn) })
	c.reconciler = reconciler.New(c.store, c.reactions)

	c.draft = draft.NewSession(
		services.KV.Prefix(versioned.MakeConversationPrefix(peer.ID)),
		params.DraftDebounce)

	// Callbacks posted during restore run once the goroutine starts
	if services.Uploads != nil {
		c.uploadSub = services.Uploads.Subscribe(&uploadListener{c: c})
	}
	if err := c.restore(); err != nil {
		if c.uploadSub != nil {
			services.Uploads.Unsubscribe(c.uploadSub)
		}
		cancel()
		return nil, err
	}

	go c.run()
	c.post(c.runQueue)
	jww.INFO.Printf("[Conversation] Opened %d (%s) with %d messages",
		peer.ID, peer.Kind, c.store.Len())
	return c, nil
}

// restore recovers the draft and interrupted sends after a restart.
func (c *Controller) restore() error {
	if _, err := c.draft.Load(); err != nil {
		return errors.WithMessagef(err, "failed to load draft of %d", c.peer.ID)
	}

	// A draft whose message is already stored was sent before the draft
	// could be cleared.
	if id := c.draft.DraftID(); id != 0 {
		if _, sent := c.store.Find(id); sent {
			jww.INFO.Printf("[Conversation] Discarding draft %d of %d, "+
				"already sent", id, c.peer.ID)
			c.draft.Clear()
		} else {
			c.store.ReserveLocalID(id)
		}
	}

	for _, m := range c.store.WithStatus(message.Sending) {
		jww.INFO.Printf("[Conversation] Dispatch of %d was interrupted",
			m.LocalID)
		c.store.Update(m.LocalID, func(m *message.Message) {
			m.Status = message.Error
		})
	}

	c.restoreUploads()
	return nil
}

// restoreUploads matches draft entries and unsent messages against the
// upload queue and the results that finished while the conversation was
// closed. A waiting message with nothing left to wait for is queued; one
// whose uploads vanished without a result fails.
func (c *Controller) restoreUploads() {
	if c.services.Uploads == nil {
		for _, id := range c.draft.UploadIDs() {
			c.draft.RemoveUpload(id)
		}
		for _, m := range c.store.WithStatus(message.WaitingForUpload) {
			c.setStatus(m.LocalID, message.Error)
		}
		return
	}

	if id := c.draft.DraftID(); id != 0 {
		for _, uploadID := range c.draft.UploadIDs() {
			if _, queued := c.services.Uploads.Lookup(
				upload.ID(uploadID)); queued {
				c.uploadDest[upload.ID(uploadID)] = id
				continue
			}
			result, ok := c.services.Uploads.Completed(upload.ID(uploadID))
			if !ok {
				jww.WARN.Printf("[Conversation] Dropping lost upload %s from "+
					"draft of %d", uploadID, c.peer.ID)
				c.draft.RemoveUpload(uploadID)
				continue
			}
			c.draft.ResolveUpload(uploadID, result.Attachment)
			c.services.Uploads.Acknowledge(result.Upload.ID)
		}
	}

	pending := c.store.Filter(func(m *message.Message) bool {
		return m.Status.IsUnsent() && len(m.PendingUploads) > 0
	})
	for _, m := range pending {
		running, lost := c.settleUploads(m.LocalID, false)
		if m.Status != message.WaitingForUpload {
			continue
		}
		switch {
		case len(lost) > 0:
			jww.WARN.Printf("[Conversation] Uploads %v of %d were lost",
				lost, m.LocalID)
			c.setStatus(m.LocalID, message.Error)
		case running == 0:
			c.setStatus(m.LocalID, message.Queue)
		}
	}

	// Results nothing here waits for anymore
	var stale []upload.ID
	for _, done := range c.services.Uploads.Completions(c.params.AccountID,
		c.peer.ID) {
		if _, tracked := c.uploadDest[done.Upload.ID]; !tracked {
			stale = append(stale, done.Upload.ID)
		}
	}
	c.services.Uploads.Acknowledge(stale...)
}

// Peer returns the conversation target.
func (c *Controller) Peer() message.Peer { return c.peer }

// Close checkpoints the draft, stops the timers and the goroutine and stops
// observing uploads. Uploads keep running.
func (c *Controller) Close() error {
	if err := c.stop.Close(); err != nil {
		return err
	}
	return stoppable.WaitForStopped(c.stop, closeTimeout)
}

// run is the controller goroutine.
func (c *Controller) run() {
	for {
		select {
		case <-c.stop.Quit():
			c.shutdown()
			c.stop.ToStopped()
			return
		case <-c.inbox.signal:
			for _, fn := range c.inbox.drain() {
				fn()
			}
			c.flush()
		}
	}
}

func (c *Controller) shutdown() {
	c.cancel()
	dropped := c.inbox.close()
	close(c.closed)
	if len(dropped) > 0 {
		jww.DEBUG.Printf("[Conversation] Dropped %d queued operations of "+
			"%d on close", len(dropped), c.peer.ID)
	}

	c.draft.Checkpoint()
	c.draft.Close()
	c.reactions.Close()
	if c.uploadSub != nil {
		c.services.Uploads.Unsubscribe(c.uploadSub)
	}

	c.subMux.Lock()
	c.subscribers.Do(func(i interface{}) {
		close(i.(*Subscription).ch)
	})
	c.subscribers = set.New()
	c.subMux.Unlock()
	jww.INFO.Printf("[Conversation] Closed %d", c.peer.ID)
}

// post queues fn on the controller goroutine. Returns false once closed.
func (c *Controller) post(fn func()) bool {
	return c.inbox.post(fn)
}

// call runs fn on the controller goroutine and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	return c.callAsync(ctx, func(reply func(error)) {
		reply(fn())
	})
}

// callAsync runs fn on the controller goroutine and waits until fn, or work
// it started, calls reply.
func (c *Controller) callAsync(ctx context.Context,
	fn func(reply func(error))) error {
	done := make(chan error, 1)
	reply := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	if !c.post(func() { fn(reply) }) {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

// mutating wraps fn with the read-only check.
func (c *Controller) mutating(ctx context.Context, fn func() error) error {
	if c.params.ReadOnly {
		return ErrReadOnlyAccount
	}
	return c.call(ctx, fn)
}

// notify marks state as changed; subscribers are told once the current batch
// of work is done.
func (c *Controller) notify(n Notification) {
	c.pending = c.pending.merge(n)
}

// flush delivers the pending notification. A full channel already holds an
// undelivered notification, which is merged with this one.
func (c *Controller) flush() {
	n := c.pending
	if n.empty() {
		return
	}
	c.pending = Notification{}

	c.subMux.Lock()
	defer c.subMux.Unlock()
	c.subscribers.Do(func(i interface{}) {
		ch := i.(*Subscription).ch
		select {
		case ch <- n:
			return
		default:
		}
		merged := n
		select {
		case old := <-ch:
			merged = n.merge(old)
		default:
		}
		select {
		case ch <- merged:
		default:
		}
	})
}

// Subscribe returns a Subscription receiving change notifications.
func (c *Controller) Subscribe() *Subscription {
	size := c.params.NotificationBuffer
	if size <= 0 {
		size = 1
	}
	ch := make(chan Notification, size)
	sub := &Subscription{C: ch, ch: ch}

	c.subMux.Lock()
	defer c.subMux.Unlock()
	select {
	case <-c.closed:
		close(ch)
	default:
		c.subscribers.Insert(sub)
	}
	return sub
}

// Unsubscribe stops and closes the Subscription.
func (c *Controller) Unsubscribe(sub *Subscription) {
	c.subMux.Lock()
	defer c.subMux.Unlock()
	if c.subscribers.Has(sub) {
		c.subscribers.Remove(sub)
		close(sub.ch)
	}
}

// Snapshot returns a copy of the conversation state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Messages:     c.store.OrderedSnapshot(),
		Conversation: c.store.Conversation(),
		Draft:        c.draft.Snapshot(),
	}
	if id := c.draft.DraftID(); id != 0 {
		snap.Uploads = append(snap.Uploads, c.uploadsFor(id)...)
	}
	if c.edit != nil {
		wc := c.edit.WorkingCopy()
		snap.Editing = &wc
		snap.Uploads = append(snap.Uploads, c.uploadsFor(wc.LocalID)...)
	}
	if c.services.Encryption != nil {
		snap.Encryption = c.services.Encryption.Settings(c.peer.ID)
	}
	return snap
}

// find returns the stored message or ErrUnknownMessage.
func (c *Controller) find(localID int64) (message.Message, error) {
	m, exists := c.store.Find(localID)
	if !exists {
		return message.Message{}, errors.WithMessagef(
			ErrUnknownMessage, unknownMessageErr, localID)
	}
	return m, nil
}

// setStatus moves the message to next if the transition is allowed.
func (c *Controller) setStatus(localID int64, next message.Status) bool {
	m, exists := c.store.Find(localID)
	if !exists {
		return false
	}
	if !m.Status.CanTransitionTo(next) {
		jww.DEBUG.Printf("[Conversation] Refusing %s -> %s for %d",
			m.Status, next, localID)
		return false
	}
	c.store.Update(localID, func(m *message.Message) { m.Status = next })
	c.notify(Notification{Messages: true})
	return true
}

// isSelf returns true for the viewer's own saved-messages chat.
func (c *Controller) isSelf() bool {
	return c.peer.Kind == message.User && c.peer.ID == c.params.OwnerID
}
