////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/reaction"
	"gitlab.com/elixxir/chatsync/reconciler"
	"gitlab.com/xx_network/primitives/netTime"
)

// Event types reported when a network operation fails.
const (
	deleteFailedEvent    = "DeleteFailed"
	restoreFailedEvent   = "RestoreFailed"
	reactFailedEvent     = "ReactFailed"
	readFailedEvent      = "MarkAsReadFailed"
	pinFailedEvent       = "PinFailed"
	importantFailedEvent = "MarkImportantFailed"
)

// reportFailure logs and reports a failed network operation.
func (c *Controller) reportFailure(evtType string, err error) {
	jww.WARN.Printf("[Conversation] %s in %d: %+v", evtType, c.peer.ID, err)
	c.reporter.Report(event.PriorityNotice, event.CategoryConversation,
		evtType, fmt.Sprintf("conversation %d: %v", c.peer.ID, err))
}

// Delete removes the messages. Unsent messages are removed locally, after
// cancelling their uploads; sent messages are deleted on the server and
// flagged once it confirms. The message being edited is left alone.
// Deleting for everyone needs admin rights, or an outgoing message inside
// the delete window outside of the viewer's own chat.
func (c *Controller) Delete(ctx context.Context, localIDs []int64,
	forAll bool) error {
	if c.params.ReadOnly {
		return ErrReadOnlyAccount
	}
	return c.callAsync(ctx, func(reply func(error)) {
		msgs := make([]message.Message, 0, len(localIDs))
		for _, id := range localIDs {
			m, err := c.find(id)
			if err != nil {
				reply(err)
				return
			}
			if m.Status == message.Sent && forAll && !c.canDeleteForAll(m) {
				reply(errors.WithMessagef(ErrNotPermitted, deleteForAllErr, id))
				return
			}
			msgs = append(msgs, m)
		}

		var local []int64
		var remote []message.Message
		for _, m := range msgs {
			switch m.Status {
			case message.Editing:
			case message.Sent:
				if c.edit != nil && c.edit.LocalID() == m.LocalID {
					jww.DEBUG.Printf("[Conversation] Not deleting %d while "+
						"it is edited", m.LocalID)
					continue
				}
				remote = append(remote, m)
			default:
				if len(m.PendingUploads) > 0 {
					c.dropUploadsOf(m)
				}
				local = append(local, m.LocalID)
			}
		}
		if len(local) > 0 {
			c.store.RemoveMany(local)
			c.notify(Notification{Messages: true})
		}
		if len(remote) == 0 {
			reply(nil)
			return
		}

		remoteIDs := make([]int64, len(remote))
		for i := range remote {
			remoteIDs[i] = remote[i].RemoteID
		}
		go func() {
			deleted, err := c.services.Network.Delete(c.ctx, c.peer,
				remoteIDs, forAll)
			if !c.post(func() {
				c.onDeleted(remote, deleted, forAll, err)
				reply(err)
			}) {
				reply(ErrClosed)
			}
		}()
	})
}

func (c *Controller) canDeleteForAll(m message.Message) bool {
	if c.store.Conversation().ACL.IsAdmin {
		return true
	}
	return m.Out && !c.isSelf() &&
		netTime.Now().Sub(m.Timestamp) < c.params.DeleteForAllWindow
}

func (c *Controller) onDeleted(msgs []message.Message, deleted []bool,
	forAll bool, err error) {
	if err != nil {
		c.reportFailure(deleteFailedEvent, err)
		return
	}
	var batch []reconciler.Event
	for i, m := range msgs {
		if i < len(deleted) && deleted[i] {
			batch = append(batch, reconciler.DeleteUpdate{LocalID: m.LocalID,
				Deleted: true, DeletedForAll: forAll})
		}
	}
	c.apply(batch)
}

// Restore undoes a delete that was not for everyone.
func (c *Controller) Restore(ctx context.Context, localID int64) error {
	if c.params.ReadOnly {
		return ErrReadOnlyAccount
	}
	return c.callAsync(ctx, func(reply func(error)) {
		m, err := c.find(localID)
		if err != nil {
			reply(err)
			return
		}
		if !m.Deleted || m.DeletedForAll || m.Status != message.Sent {
			reply(errors.WithMessagef(ErrNotPermitted, restoreErr, localID))
			return
		}
		go func() {
			err := c.services.Network.Restore(c.ctx, c.peer, m.RemoteID)
			if !c.post(func() {
				if err != nil {
					c.reportFailure(restoreFailedEvent, err)
				} else {
					c.apply([]reconciler.Event{
						reconciler.DeleteUpdate{LocalID: localID}})
				}
				reply(err)
			}) {
				reply(ErrClosed)
			}
		}()
	})
}

// React sets the viewer's reaction on a sent message; nil removes it. Once
// the server confirms, the change is applied after the settle delay unless
// an authoritative reaction update arrives first.
func (c *Controller) React(ctx context.Context, localID int64,
	reactionID *int64) error {
	if c.params.ReadOnly {
		return ErrReadOnlyAccount
	}
	var rid *int64
	if reactionID != nil {
		if err := c.catalog.Validate(*reactionID); err != nil {
			return err
		}
		v := *reactionID
		rid = &v
	}

	return c.callAsync(ctx, func(reply func(error)) {
		m, err := c.find(localID)
		if err != nil {
			reply(err)
			return
		}
		if m.Status != message.Sent {
			reply(errors.WithMessagef(ErrNotPermitted, notSentErr,
				localID, m.Status))
			return
		}
		go func() {
			err := c.services.Network.React(c.ctx, c.peer, m.RemoteID, rid)
			if !c.post(func() {
				if err != nil {
					c.reportFailure(reactFailedEvent, err)
				} else {
					c.settleReaction(localID, rid)
				}
				reply(err)
			}) {
				reply(ErrClosed)
			}
		}()
	})
}

func (c *Controller) settleReaction(localID int64, reactionID *int64) {
	key := reaction.Key{MessageID: localID, PeerID: c.peer.ID}
	c.reactions.Schedule(key, func() {
		if c.store.Update(localID, func(m *message.Message) {
			m.ApplyOwnReaction(reactionID)
		}) {
			c.notify(Notification{Messages: true})
		}
	})
}

// MarkAsRead marks incoming messages up to upTo as read; zero means the
// newest one. The read marker moves immediately and moves back if the
// server rejects it.
func (c *Controller) MarkAsRead(ctx context.Context, upTo int64) error {
	return c.mutating(ctx, func() error {
		if upTo == 0 {
			upTo = c.latestIncoming()
		}
		c.markRead(upTo)
		return nil
	})
}

func (c *Controller) latestIncoming() int64 {
	var latest int64
	for _, m := range c.store.Filter(func(m *message.Message) bool {
		return !m.Out
	}) {
		if m.RemoteID > latest {
			latest = m.RemoteID
		}
	}
	return latest
}

func (c *Controller) markRead(upTo int64) {
	prev := c.store.Conversation()
	if upTo <= prev.LastReadIncoming && prev.UnreadCount == 0 {
		return
	}
	read := prev.LastReadIncoming
	if upTo > read {
		read = upTo
	}
	c.store.UpdateConversation(func(conv *message.Conversation) {
		conv.LastReadIncoming = read
		conv.UnreadCount = 0
	})
	c.notify(Notification{Conversation: true})

	go func() {
		err := c.services.Network.MarkAsRead(c.ctx, c.peer, upTo)
		if err == nil {
			return
		}
		c.post(func() {
			c.reportFailure(readFailedEvent, err)
			cur := c.store.Conversation()
			if cur.LastReadIncoming != read || cur.UnreadCount != 0 {
				// Newer state arrived; keep it
				return
			}
			c.store.UpdateConversation(func(conv *message.Conversation) {
				conv.LastReadIncoming = prev.LastReadIncoming
				conv.UnreadCount = prev.UnreadCount
			})
			c.notify(Notification{Conversation: true})
		})
	}()
}

// Pin pins a sent message. Requires the pin permission.
func (c *Controller) Pin(ctx context.Context, localID int64) error {
	return c.mutating(ctx, func() error {
		if err := c.checkCanPin(); err != nil {
			return err
		}
		m, err := c.find(localID)
		if err != nil {
			return err
		}
		if m.Status != message.Sent {
			return errors.WithMessagef(ErrNotPermitted, notSentErr,
				localID, m.Status)
		}
		c.setPinned(localID, func(ctx context.Context) error {
			return c.services.Network.Pin(ctx, c.peer, m.RemoteID)
		})
		return nil
	})
}

// Unpin clears the pinned message. Requires the pin permission.
func (c *Controller) Unpin(ctx context.Context) error {
	return c.mutating(ctx, func() error {
		if err := c.checkCanPin(); err != nil {
			return err
		}
		c.setPinned(0, func(ctx context.Context) error {
			return c.services.Network.Unpin(ctx, c.peer)
		})
		return nil
	})
}

func (c *Controller) checkCanPin() error {
	if !c.store.Conversation().ACL.CanPin {
		return errors.WithMessagef(ErrNotPermitted, canPinErr, c.peer.ID)
	}
	return nil
}

// setPinned applies the pin optimistically and restores the old pin if send
// fails.
func (c *Controller) setPinned(localID int64,
	send func(ctx context.Context) error) {
	old := c.store.Conversation().PinnedMessageID
	if old == localID {
		return
	}
	c.pin(localID)

	go func() {
		err := send(c.ctx)
		if err == nil {
			return
		}
		c.post(func() {
			c.reportFailure(pinFailedEvent, err)
			if c.store.Conversation().PinnedMessageID == localID {
				c.pin(old)
			}
		})
	}()
}

func (c *Controller) pin(localID int64) {
	c.apply([]reconciler.Event{
		reconciler.PeerUpdate{PeerID: c.peer.ID, Pinned: &localID}})
}

// MarkImportant sets the important flag of sent messages. The flags change
// immediately and change back if the server rejects them.
func (c *Controller) MarkImportant(ctx context.Context, localIDs []int64,
	important bool) error {
	return c.mutating(ctx, func() error {
		msgs := make([]message.Message, len(localIDs))
		for i, id := range localIDs {
			m, err := c.find(id)
			if err != nil {
				return err
			}
			if m.Status != message.Sent {
				return errors.WithMessagef(ErrNotPermitted, notSentErr,
					id, m.Status)
			}
			msgs[i] = m
		}

		remoteIDs := make([]int64, len(msgs))
		var batch []reconciler.Event
		var undo []reconciler.ImportantUpdate
		for i, m := range msgs {
			remoteIDs[i] = m.RemoteID
			batch = append(batch, reconciler.ImportantUpdate{
				LocalID: m.LocalID, Important: important})
			undo = append(undo, reconciler.ImportantUpdate{
				LocalID: m.LocalID, Important: m.Important})
		}
		c.apply(batch)

		go func() {
			err := c.services.Network.MarkImportant(c.ctx, c.peer, remoteIDs,
				important)
			if err == nil {
				return
			}
			c.post(func() {
				c.reportFailure(importantFailedEvent, err)
				var rollback []reconciler.Event
				for _, u := range undo {
					if m, ok := c.store.Find(u.LocalID); ok &&
						m.Important == important {
						rollback = append(rollback, u)
					}
				}
				c.apply(rollback)
			})
		}()
		return nil
	})
}
