////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package reconciler merges server push events into a conversation's message
// store. Server state always wins over optimistic local values, and replayed
// events leave the store unchanged.
package reconciler

import (
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/messageStore"
	"gitlab.com/elixxir/chatsync/reaction"
)

// ReactionCanceller stops pending reaction settle timers. It is satisfied by
// *reaction.Synchronizer.
type ReactionCanceller interface {
	Cancel(key reaction.Key) bool
}

// Result summarises what a batch changed.
type Result struct {
	// Changed is true if any message or the conversation changed.
	Changed bool

	// Conversation is true if the conversation aggregate changed.
	Conversation bool

	// Removed lists local IDs deleted from the store.
	Removed []int64

	// Upserted lists local IDs inserted or modified.
	Upserted []int64

	// Incoming lists local IDs of inbound messages seen for the first time.
	Incoming []int64
}

func (r *Result) upserted(localID int64) {
	r.Changed = true
	r.Upserted = append(r.Upserted, localID)
}

func (r *Result) removed(localIDs ...int64) {
	if len(localIDs) == 0 {
		return
	}
	r.Changed = true
	r.Removed = append(r.Removed, localIDs...)
}

func (r *Result) conversation() {
	r.Changed = true
	r.Conversation = true
}

// Reconciler applies event batches to one Store. Like the Store, it must
// only be used from the goroutine that owns the conversation.
type Reconciler struct {
	store     *messageStore.Store
	reactions ReactionCanceller
}

// New returns a Reconciler for the store. reactions may be nil.
func New(store *messageStore.Store, reactions ReactionCanceller) *Reconciler {
	return &Reconciler{store: store, reactions: reactions}
}

// Apply applies the events in order and reports what changed. Events about
// unknown messages are dropped.
func (r *Reconciler) Apply(batch []Event) Result {
	var res Result
	for _, e := range batch {
		switch e := deref(e).(type) {
		case StatusUpdate:
			r.applyStatus(e, &res)
		case DeleteUpdate:
			r.applyDelete(e, &res)
		case ImportantUpdate:
			r.applyImportant(e, &res)
		case ReactionUpdate:
			r.applyReaction(e, &res)
		case NewMessage:
			r.applyMessage(e, &res)
		case PeerUpdate:
			r.applyPeer(e, &res)
		default:
			jww.FATAL.Panicf("[Reconciler] Unhandled event type %T", e)
		}
	}
	return res
}

func (r *Reconciler) applyStatus(e StatusUpdate, res *Result) {
	m, exists := r.store.Find(e.LocalID)
	if !exists {
		jww.DEBUG.Printf("[Reconciler] Status %s for unknown message %d",
			e.Status, e.LocalID)
		return
	}

	if e.RemoteID != nil {
		dup, found := r.store.FindByRemoteID(*e.RemoteID)
		if found && dup.LocalID != e.LocalID {
			jww.DEBUG.Printf("[Reconciler] Message %d already stored as %d, "+
				"removing placeholder", *e.RemoteID, dup.LocalID)
			if r.store.Remove(e.LocalID) {
				res.removed(e.LocalID)
			}
			return
		}
	}

	if m.Status == message.Sent && e.Status != message.Sent {
		jww.DEBUG.Printf("[Reconciler] Ignoring stale status %s for sent "+
			"message %d", e.Status, e.LocalID)
		return
	}
	if e.Status == message.Editing {
		jww.DEBUG.Printf("[Reconciler] Ignoring editing status for %d",
			e.LocalID)
		return
	}

	r.store.Update(e.LocalID, func(m *message.Message) {
		m.Status = e.Status
		if e.RemoteID != nil {
			m.RemoteID = *e.RemoteID
		}
	})

	localID := e.LocalID
	if e.Status == message.Sent && e.RemoteID != nil &&
		*e.RemoteID != e.LocalID {
		r.store.Rekey(e.LocalID, *e.RemoteID)
		res.removed(e.LocalID)
		localID = *e.RemoteID
	}
	res.upserted(localID)
}

func (r *Reconciler) applyDelete(e DeleteUpdate, res *Result) {
	ok := r.store.Update(e.LocalID, func(m *message.Message) {
		m.Deleted = e.Deleted || e.DeletedForAll
		m.DeletedForAll = e.DeletedForAll
	})
	if !ok {
		jww.DEBUG.Printf("[Reconciler] Delete for unknown message %d",
			e.LocalID)
		return
	}
	res.upserted(e.LocalID)
}

func (r *Reconciler) applyImportant(e ImportantUpdate, res *Result) {
	ok := r.store.Update(e.LocalID, func(m *message.Message) {
		m.Important = e.Important
	})
	if !ok {
		jww.DEBUG.Printf("[Reconciler] Important flag for unknown message %d",
			e.LocalID)
		return
	}
	res.upserted(e.LocalID)
}

func (r *Reconciler) applyReaction(e ReactionUpdate, res *Result) {
	if r.reactions != nil {
		r.reactions.Cancel(reaction.Key{MessageID: e.LocalID, PeerID: e.PeerID})
	}

	ok := r.store.Update(e.LocalID, func(m *message.Message) {
		m.Reactions = append([]message.Reaction(nil), e.Reactions...)
		if !e.KeepMyReaction {
			m.MyReaction = 0
			if e.ReactionID != nil {
				m.MyReaction = *e.ReactionID
			}
		}
	})
	if !ok {
		jww.DEBUG.Printf("[Reconciler] Reactions for unknown message %d",
			e.LocalID)
		return
	}
	res.upserted(e.LocalID)
}

func (r *Reconciler) applyMessage(e NewMessage, res *Result) {
	m := e.Message.Clone()
	if m.LocalID == 0 {
		m.LocalID = m.RemoteID
	}
	if m.LocalID == 0 {
		jww.DEBUG.Printf("[Reconciler] Dropping message without an ID: %s",
			m.String())
		return
	}

	// Whatever the payload says, the server already has it
	if m.Status != message.Sent {
		jww.DEBUG.Printf("[Reconciler] Delivered message %d carried status "+
			"%s", m.LocalID, m.Status)
		m.Status = message.Sent
	}
	m.PendingUploads = nil

	_, known := r.store.Find(m.LocalID)
	res.removed(r.store.Upsert(m)...)
	res.upserted(m.LocalID)

	if m.Out || known {
		return
	}
	res.Incoming = append(res.Incoming, m.LocalID)

	conv := r.store.Conversation()
	convChanged := false
	if m.Keyboard != nil && !m.Keyboard.Inline {
		convChanged = true
		if m.Keyboard.HasButtons() {
			conv.Keyboard = m.Keyboard
		} else {
			conv.Keyboard = nil
		}
	}
	if m.Action == message.ActionTitleUpdate {
		convChanged = true
		conv.Title = m.ActionText
	}
	if m.RemoteID > conv.LastReadIncoming {
		convChanged = true
		conv.UnreadCount++
	}
	if convChanged {
		r.store.UpdateConversation(func(c *message.Conversation) {
			c.Keyboard = conv.Keyboard
			c.Title = conv.Title
			c.UnreadCount = conv.UnreadCount
		})
		res.conversation()
	}
}

func (r *Reconciler) applyPeer(e PeerUpdate, res *Result) {
	if e.PeerID != r.store.ConversationID() {
		jww.DEBUG.Printf("[Reconciler] Peer update for %d in conversation %d",
			e.PeerID, r.store.ConversationID())
		return
	}

	var oldPinned int64
	r.store.UpdateConversation(func(c *message.Conversation) {
		oldPinned = c.PinnedMessageID
		if e.ReadIncoming != nil {
			c.LastReadIncoming = *e.ReadIncoming
		}
		if e.ReadOutgoing != nil {
			c.LastReadOutgoing = *e.ReadOutgoing
		}
		if e.UnreadCount != nil {
			c.UnreadCount = *e.UnreadCount
		}
		if e.Pinned != nil {
			c.PinnedMessageID = *e.Pinned
		}
		if e.Title != nil {
			c.Title = *e.Title
		}
		if e.ACL != nil {
			c.ACL = *e.ACL
		}
	})
	res.conversation()

	if e.Pinned != nil && *e.Pinned != oldPinned {
		setPinned := func(id int64, pinned bool) {
			if id != 0 && r.store.Update(id, func(m *message.Message) {
				m.Pinned = pinned
			}) {
				res.upserted(id)
			}
		}
		setPinned(oldPinned, false)
		setPinned(*e.Pinned, true)
	}
}
