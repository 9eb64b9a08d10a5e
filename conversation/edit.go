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
	"gitlab.com/elixxir/chatsync/draft"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/xx_network/primitives/netTime"
)

const editFailedEvent = "EditFailed"

// StartEdit opens an edit of an outgoing sent message. An edit already open
// is cancelled.
func (c *Controller) StartEdit(ctx context.Context, localID int64) error {
	return c.mutating(ctx, func() error {
		m, err := c.find(localID)
		if err != nil {
			return err
		}
		if err = c.checkEditable(m); err != nil {
			return err
		}
		if c.edit != nil {
			c.cancelEdit()
		}
		c.edit = draft.StartEdit(m)
		jww.DEBUG.Printf("[Conversation] Editing %s", m.String())
		c.notify(Notification{Messages: true, Draft: true})
		return nil
	})
}

func (c *Controller) checkEditable(m message.Message) error {
	switch {
	case m.Status != message.Sent:
		return errors.WithMessagef(ErrNotPermitted, notSentErr,
			m.LocalID, m.Status)
	case !m.Out:
		return errors.WithMessagef(ErrNotPermitted, notOutgoingErr, m.LocalID)
	case m.Deleted:
		return errors.WithMessagef(ErrNotPermitted, restoreErr, m.LocalID)
	case c.params.EditWindow > 0 &&
		netTime.Now().Sub(m.Timestamp) > c.params.EditWindow:
		return errors.WithMessagef(ErrNotPermitted, editWindowErr,
			m.LocalID, c.params.EditWindow)
	}
	return nil
}

// CancelEdit discards the open edit and cancels its uploads.
func (c *Controller) CancelEdit(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.edit == nil {
			return ErrNoEdit
		}
		c.cancelEdit()
		return nil
	})
}

func (c *Controller) cancelEdit() {
	localID := c.edit.LocalID()
	c.edit = nil
	c.cancelUploadsFor(localID)
	c.notify(Notification{Messages: true, Draft: true})
}

// SaveEdit sends the open edit and waits for the server. On success the
// message content is replaced in place and the edit closes; on failure the
// edit stays open. Fails with draft.ErrUploadNotResolved while any upload
// is attached.
func (c *Controller) SaveEdit(ctx context.Context) error {
	if c.params.ReadOnly {
		return ErrReadOnlyAccount
	}
	return c.callAsync(ctx, func(reply func(error)) {
		if c.edit == nil {
			reply(ErrNoEdit)
			return
		}
		edited, err := c.edit.Build()
		if err != nil {
			reply(err)
			return
		}

		session := c.edit
		go func() {
			stored, err := c.services.Network.Edit(c.ctx, c.peer,
				edited.RemoteID, edited.Text, edited.Attachments,
				edited.Forwards)
			if !c.post(func() {
				c.onEdited(session, edited, stored, err)
				reply(err)
			}) {
				reply(ErrClosed)
			}
		}()
	})
}

func (c *Controller) onEdited(session *draft.EditSession, edited,
	stored message.Message, err error) {
	if err != nil {
		jww.WARN.Printf("[Conversation] Failed to edit %d: %+v",
			edited.LocalID, err)
		c.reporter.Report(event.PriorityNotice, event.CategoryConversation,
			editFailedEvent, fmt.Sprintf("message %d: %v", edited.LocalID, err))
		return
	}

	content := stored
	if content.RemoteID == 0 {
		content = edited
	}
	c.store.Update(edited.LocalID, func(m *message.Message) {
		m.Text = content.Text
		m.Attachments = content.Attachments
		m.Forwards = content.Forwards
	})
	if c.edit == session {
		c.edit = nil
	}
	c.notify(Notification{Messages: true, Draft: true})
}
