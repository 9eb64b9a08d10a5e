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
	"gitlab.com/elixxir/chatsync/reconciler"
	"gitlab.com/elixxir/chatsync/upload"
	"gitlab.com/xx_network/primitives/netTime"
)

// Error messages.
const (
	noUploadsErr     = "conversation has no upload coordinator"
	unknownEntryErr  = "no attachment entry %d"
	unknownUploadErr = "upload %s is not attached"
	uploadFailedErr  = "upload %s failed: %s"
	uploadLostErr    = "upload %s is no longer tracked"
	noEncryptionErr  = "conversation has no encryption negotiator"
)

// Event types and details.
const (
	sendFailedEvent   = "SendFailed"
	sendFailedDetails = "message %d to %d: %v"
)

// FileIntent is a file to upload into the draft or the open edit.
type FileIntent struct {
	Path   string
	Size   int64
	Method upload.Method
}

// composer is the content being written: the draft, or the open edit.
type composer interface {
	SetText(text string)
	AppendAttachments(added ...message.AttachmentEntry) []int64
	RemoveAttachment(entryID int64) (message.AttachmentEntry, bool)
	RemoveUpload(uploadID string) bool
	ResolveUpload(uploadID string, a message.Attachment) bool
}

// composing returns the open edit, or the draft. When reserve is set the
// draft gets a local ID so uploads have a destination.
func (c *Controller) composing(reserve bool) (composer, int64) {
	if c.edit != nil {
		return c.edit, c.edit.LocalID()
	}
	if reserve {
		return c.draft, c.draft.EnsureDraftID(c.store.NextLocalID)
	}
	return c.draft, c.draft.DraftID()
}

// SetText replaces the text of the open edit, or of the draft.
func (c *Controller) SetText(ctx context.Context, text string) error {
	return c.mutating(ctx, func() error {
		comp, _ := c.composing(false)
		comp.SetText(text)
		c.notify(Notification{Draft: true})
		return nil
	})
}

// AttachFiles starts uploads for the files and adds a pending entry for each
// to the open edit, or to the draft. Returns the entry IDs.
func (c *Controller) AttachFiles(ctx context.Context,
	files ...FileIntent) ([]int64, error) {
	var entryIDs []int64
	err := c.mutating(ctx, func() error {
		if c.services.Uploads == nil {
			return errors.New(noUploadsErr)
		}
		comp, destID := c.composing(true)

		intents := make([]upload.Intent, len(files))
		for i, f := range files {
			method := f.Method
			if method == upload.AnyMethod {
				method = upload.Document
			}
			intents[i] = upload.Intent{
				AccountID:   c.params.AccountID,
				Destination: c.destination(destID, method),
				Path:        f.Path,
				Size:        f.Size,
			}
		}
		ids, err := c.services.Uploads.Enqueue(intents)
		if err != nil {
			return err
		}

		entries := make([]message.AttachmentEntry, len(ids))
		for i, id := range ids {
			c.uploadDest[id] = destID
			entries[i] = message.AttachmentEntry{IsUpload: true,
				Upload: &message.PendingUpload{
					UploadID: string(id), Path: files[i].Path}}
		}
		entryIDs = comp.AppendAttachments(entries...)
		c.notify(Notification{Draft: true, Uploads: true})
		return nil
	})
	return entryIDs, err
}

// Attach adds resolved attachments to the open edit, or to the draft.
func (c *Controller) Attach(ctx context.Context,
	attachments ...message.Attachment) ([]int64, error) {
	var entryIDs []int64
	err := c.mutating(ctx, func() error {
		comp, _ := c.composing(true)
		entries := make([]message.AttachmentEntry, len(attachments))
		for i := range attachments {
			a := attachments[i]
			entries[i] = message.AttachmentEntry{Attachment: &a}
		}
		entryIDs = comp.AppendAttachments(entries...)
		c.notify(Notification{Draft: true})
		return nil
	})
	return entryIDs, err
}

// Forward adds a bundle of forwarded messages.
func (c *Controller) Forward(ctx context.Context,
	messageIDs ...int64) (int64, error) {
	ids, err := c.Attach(ctx, message.Attachment{
		Type: message.Forward, Messages: messageIDs})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// RemoveAttachment removes the entry. A pending upload is cancelled in the
// same step, so no result can land in a removed slot.
func (c *Controller) RemoveAttachment(ctx context.Context, entryID int64) error {
	return c.mutating(ctx, func() error {
		comp, _ := c.composing(false)
		entry, ok := comp.RemoveAttachment(entryID)
		if !ok {
			return errors.Errorf(unknownEntryErr, entryID)
		}
		if entry.IsUpload && entry.Upload != nil {
			c.cancelUpload(upload.ID(entry.Upload.UploadID))
		}
		c.notify(Notification{Draft: true})
		return nil
	})
}

// CancelUpload cancels an upload attached to the draft or the open edit and
// removes its entry.
func (c *Controller) CancelUpload(ctx context.Context, id upload.ID) error {
	return c.mutating(ctx, func() error {
		comp, _ := c.composing(false)
		if !comp.RemoveUpload(string(id)) {
			return errors.Errorf(unknownUploadErr, id)
		}
		c.cancelUpload(id)
		c.notify(Notification{Draft: true, Uploads: true})
		return nil
	})
}

func (c *Controller) cancelUpload(id upload.ID) {
	delete(c.uploadDest, id)
	if c.services.Uploads == nil {
		return
	}
	if err := c.services.Uploads.Cancel(id); err != nil {
		jww.DEBUG.Printf("[Conversation] Cancel of upload %s: %+v", id, err)
	}
}

// Send turns the draft into a message and returns its local ID. The message
// waits for running uploads; failed uploads block the send.
func (c *Controller) Send(ctx context.Context) (int64, error) {
	var localID int64
	err := c.mutating(ctx, func() error {
		var err error
		localID, err = c.send()
		return err
	})
	return localID, err
}

func (c *Controller) send() (int64, error) {
	if c.edit != nil {
		return 0, errors.WithMessage(ErrNotPermitted,
			"finish the open edit before sending")
	}
	hasUploads := c.draft.HasUploads()
	if !c.draft.CanSend() && !hasUploads {
		return 0, draft.ErrNothingToSend
	}

	status := message.Queue
	var pending []string
	if hasUploads {
		pending = c.draft.UploadIDs()
		if err := c.checkUploads(c.draft.DraftID(), pending); err != nil {
			return 0, err
		}
		status = message.WaitingForUpload
	}

	localID := c.draft.EnsureDraftID(c.store.NextLocalID)
	d := c.draft.Snapshot()
	atts, forwards := d.Content()
	m := message.Message{
		LocalID:     localID,
		Status:      status,
		Text:        d.Text,
		Attachments: atts,
		Forwards:    forwards,
		SenderID:    c.params.OwnerID,
		Out:         true,
		Timestamp:   netTime.Now(),
		RandomID:    message.NewRandomID(),
		Encrypted:   c.encryptionEnabled(),

		PendingUploads: pending,
	}

	// The message is stored before the draft is cleared; on restart a draft
	// whose ID is already stored is discarded.
	c.store.Upsert(m)
	c.draft.Clear()
	jww.DEBUG.Printf("[Conversation] Composed %s", m.String())

	// Uploads may have finished with their results still in the inbox
	if status == message.WaitingForUpload {
		if running, lost := c.settleUploads(localID, false); running == 0 &&
			len(lost) == 0 {
			c.setStatus(localID, message.Queue)
		}
	}

	c.notify(Notification{Messages: true, Draft: true})
	c.runQueue()
	return localID, nil
}

// checkUploads fails with draft.ErrUploadNotResolved if any attached upload
// failed or is no longer tracked.
func (c *Controller) checkUploads(destID int64, attached []string) error {
	if c.services.Uploads == nil {
		return errors.WithMessage(draft.ErrUploadNotResolved, noUploadsErr)
	}
	tracked := make(map[string]bool)
	for _, u := range c.uploadsFor(destID) {
		if u.Status == upload.Error {
			return errors.WithMessagef(draft.ErrUploadNotResolved,
				uploadFailedErr, u.ID, u.ErrorText)
		}
		tracked[string(u.ID)] = true
	}
	for _, id := range attached {
		if tracked[id] {
			continue
		}
		if _, done := c.services.Uploads.Completed(upload.ID(id)); !done {
			return errors.WithMessagef(draft.ErrUploadNotResolved,
				uploadLostErr, id)
		}
	}
	return nil
}

func (c *Controller) encryptionEnabled() bool {
	return c.services.Encryption != nil &&
		c.services.Encryption.IsSupported(c.peer) &&
		c.services.Encryption.IsEnabled(c.peer.ID)
}

// runQueue dispatches the oldest queued message unless a dispatch is in
// flight. It continues after each success and stops at the first failure.
func (c *Controller) runQueue() {
	if c.dispatching {
		return
	}
	queued := c.store.WithStatus(message.Queue)
	if len(queued) == 0 {
		return
	}
	m := queued[0]
	c.setStatus(m.LocalID, message.Sending)

	req := SendRequest{
		Peer:        c.peer,
		LocalID:     m.LocalID,
		RandomID:    m.RandomID,
		Text:        m.Text,
		Attachments: m.Attachments,
		Forwards:    m.Forwards,
	}
	if m.Encrypted {
		sealed, err := c.seal(m.Text)
		if err != nil {
			c.sendFailed(m.LocalID, err)
			return
		}
		req.Encrypted = true
		req.Sealed = sealed
		req.Text = ""
	}

	c.dispatching = true
	jww.TRACE.Printf("[Conversation] Dispatching %s", m.String())
	go func() {
		c.limiter.Take()
		remoteID, err := c.services.Network.Send(c.ctx, req)
		c.post(func() { c.onSent(req.LocalID, remoteID, err) })
	}()
}

func (c *Controller) seal(text string) ([]byte, error) {
	if c.services.Encryption == nil {
		return nil, errors.New(noEncryptionErr)
	}
	return c.services.Encryption.Seal(c.peer.ID, []byte(text))
}

// onSent handles the result of a dispatch.
func (c *Controller) onSent(localID, remoteID int64, err error) {
	c.dispatching = false
	if err != nil {
		c.sendFailed(localID, err)
		return
	}

	c.services.Metrics.sent()
	res := c.reconciler.Apply([]reconciler.Event{reconciler.StatusUpdate{
		LocalID: localID, Status: message.Sent, RemoteID: &remoteID}})
	if res.Changed {
		c.notify(Notification{Messages: true})
	}
	c.runQueue()
}

// sendFailed moves the message to Error and reports it. The queue stops
// until the next trigger.
func (c *Controller) sendFailed(localID int64, err error) {
	jww.WARN.Printf("[Conversation] Failed to send %d to %d: %+v",
		localID, c.peer.ID, err)
	c.services.Metrics.failed()
	c.setStatus(localID, message.Error)
	c.reporter.Report(event.PriorityNotice, event.CategorySend,
		sendFailedEvent, fmt.Sprintf(sendFailedDetails, localID, c.peer.ID, err))
}

// Retry queues a failed message again.
func (c *Controller) Retry(ctx context.Context, localID int64) error {
	return c.mutating(ctx, func() error {
		m, err := c.find(localID)
		if err != nil {
			return err
		}
		if m.Status != message.Error {
			return errors.WithMessagef(ErrNotPermitted, retryErr,
				localID, m.Status)
		}
		if err = c.requeue(m); err != nil {
			return err
		}
		c.runQueue()
		return nil
	})
}

// NetworkChanged queues every failed message again when the network comes
// back.
func (c *Controller) NetworkChanged(ctx context.Context, online bool) error {
	if !online {
		jww.DEBUG.Printf("[Conversation] %d offline", c.peer.ID)
		return nil
	}
	return c.call(ctx, func() error {
		requeued := 0
		for _, m := range c.store.WithStatus(message.Error) {
			if err := c.requeue(m); err != nil {
				jww.DEBUG.Printf("[Conversation] Not requeueing %d: %+v",
					m.LocalID, err)
				continue
			}
			requeued++
		}
		jww.DEBUG.Printf("[Conversation] %d online, requeued %d messages",
			c.peer.ID, requeued)
		c.runQueue()
		return nil
	})
}

// requeue moves a failed message back to Queue, or to WaitingForUpload if
// it still has uploads, which are retried. A message whose uploads vanished
// without a result stays failed with draft.ErrUploadNotResolved.
func (c *Controller) requeue(m message.Message) error {
	running, lost := c.settleUploads(m.LocalID, true)
	if len(lost) > 0 {
		return errors.WithMessagef(draft.ErrUploadNotResolved, uploadLostErr,
			lost[0])
	}
	c.setStatus(m.LocalID, message.Queue)
	if running > 0 {
		c.setStatus(m.LocalID, message.WaitingForUpload)
	}
	return nil
}
