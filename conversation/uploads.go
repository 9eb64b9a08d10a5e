////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/upload"
)

const uploadFailedEvent = "UploadFailed"

// destination returns the upload destination of a message of this
// conversation.
func (c *Controller) destination(localID int64,
	method upload.Method) upload.Destination {
	return upload.Destination{
		Kind:   upload.ToMessage,
		PeerID: c.peer.ID,
		ID:     localID,
		Method: method,
	}
}

// uploadsFor returns the uploads targeting the message.
func (c *Controller) uploadsFor(localID int64) []upload.Upload {
	if c.services.Uploads == nil {
		return nil
	}
	return c.services.Uploads.Get(c.params.AccountID,
		c.destination(localID, upload.AnyMethod))
}

// cancelUploadsFor cancels every upload targeting the message.
func (c *Controller) cancelUploadsFor(localID int64) {
	if c.services.Uploads == nil {
		return
	}
	ids := c.services.Uploads.CancelAll(c.params.AccountID,
		c.destination(localID, upload.AnyMethod))
	for _, id := range ids {
		delete(c.uploadDest, id)
	}
	if len(ids) > 0 {
		jww.DEBUG.Printf("[Conversation] Cancelled %d uploads of %d",
			len(ids), localID)
	}
}

// dropUploadsOf cancels the running uploads of an unsent message and
// discards results kept for it.
func (c *Controller) dropUploadsOf(m message.Message) {
	if c.services.Uploads == nil {
		return
	}
	c.cancelUploadsFor(m.LocalID)
	ids := make([]upload.ID, len(m.PendingUploads))
	for i, id := range m.PendingUploads {
		ids[i] = upload.ID(id)
	}
	c.services.Uploads.Acknowledge(ids...)
}

// onUploadResult puts a finished upload where it belongs and acknowledges
// it to the coordinator. Until then the coordinator keeps the result, so a
// result still in the inbox when the conversation closes is applied on the
// next open.
func (c *Controller) onUploadResult(u upload.Upload, a message.Attachment) {
	delete(c.uploadDest, u.ID)
	c.applyUploadResult(u.ID, u.Destination.ID, a)
	c.services.Uploads.Acknowledge(u.ID)
}

// applyUploadResult resolves the entry of the upload in the open edit or the
// draft, or adds the attachment to the unsent message waiting for it. A
// waiting message is queued once nothing is pending anymore. Results nobody
// waits for are dropped.
func (c *Controller) applyUploadResult(id upload.ID, destID int64,
	a message.Attachment) {
	switch {
	case c.edit != nil && c.edit.LocalID() == destID &&
		contains(c.edit.UploadIDs(), string(id)):
		c.edit.ResolveUpload(string(id), a)
		c.notify(Notification{Draft: true, Uploads: true})
		return
	case c.draft.DraftID() == destID &&
		contains(c.draft.UploadIDs(), string(id)):
		c.draft.ResolveUpload(string(id), a)
		c.notify(Notification{Draft: true, Uploads: true})
		return
	}

	m, exists := c.store.Find(destID)
	if !exists || !m.Status.IsUnsent() ||
		!contains(m.PendingUploads, string(id)) {
		jww.DEBUG.Printf("[Conversation] Dropping result of upload %s for "+
			"%d", id, destID)
		return
	}
	var pending int
	c.store.Update(destID, func(m *message.Message) {
		m.Attachments = append(m.Attachments, a)
		m.PendingUploads = without(m.PendingUploads, string(id))
		pending = len(m.PendingUploads)
	})
	c.notify(Notification{Messages: true, Uploads: true})

	if m.Status == message.WaitingForUpload && pending == 0 {
		c.setStatus(destID, message.Queue)
		c.runQueue()
	}
}

// settleUploads reconciles the pending uploads of an unsent message with the
// coordinator: kept results are applied, running uploads are tracked and,
// if retry is set, failed ones are retried. Returns how many are still in
// the queue and which vanished without a result.
func (c *Controller) settleUploads(localID int64, retry bool) (
	running int, lost []string) {
	m, exists := c.store.Find(localID)
	if !exists {
		return 0, nil
	}
	if c.services.Uploads == nil {
		return 0, m.PendingUploads
	}

	var done []upload.Completion
	for _, id := range m.PendingUploads {
		uploadID := upload.ID(id)
		if u, queued := c.services.Uploads.Lookup(uploadID); queued {
			running++
			c.uploadDest[uploadID] = localID
			if retry && u.Status == upload.Error {
				if err := c.services.Uploads.Retry(uploadID); err != nil {
					jww.WARN.Printf("[Conversation] Failed to retry upload "+
						"%s: %+v", uploadID, err)
				}
			}
			continue
		}
		if result, ok := c.services.Uploads.Completed(uploadID); ok {
			done = append(done, result)
			continue
		}
		lost = append(lost, id)
	}

	if len(done) > 0 {
		ids := make([]upload.ID, len(done))
		c.store.Update(localID, func(m *message.Message) {
			for i, result := range done {
				ids[i] = result.Upload.ID
				m.Attachments = append(m.Attachments, result.Attachment)
				m.PendingUploads = without(m.PendingUploads,
					string(result.Upload.ID))
			}
		})
		c.services.Uploads.Acknowledge(ids...)
		jww.INFO.Printf("[Conversation] Applied %d finished uploads to %d",
			len(done), localID)
	}
	return running, lost
}

// waitingFor returns the unsent message whose pending uploads include id.
func (c *Controller) waitingFor(id upload.ID) (message.Message, bool) {
	msgs := c.store.Filter(func(m *message.Message) bool {
		return m.Status.IsUnsent() && contains(m.PendingUploads, string(id))
	})
	if len(msgs) == 0 {
		return message.Message{}, false
	}
	return msgs[0], true
}

// onUploadsRemoved drops the entries of cancelled uploads. A message that
// was waiting for one of them fails; it stays failed until it is deleted,
// since the attachment can no longer arrive.
func (c *Controller) onUploadsRemoved(ids []upload.ID) {
	for _, id := range ids {
		c.draft.RemoveUpload(string(id))
		if c.edit != nil {
			c.edit.RemoveUpload(string(id))
		}
		delete(c.uploadDest, id)

		if m, ok := c.waitingFor(id); ok &&
			m.Status == message.WaitingForUpload {
			jww.INFO.Printf("[Conversation] Upload %s of %d was removed",
				id, m.LocalID)
			c.setStatus(m.LocalID, message.Error)
		}
	}
	c.notify(Notification{Draft: true, Uploads: true})
}

// onUploadChanged fails a waiting message when one of its uploads fails.
func (c *Controller) onUploadChanged(u upload.Upload) {
	c.notify(Notification{Uploads: true})
	if u.Status != upload.Error {
		return
	}
	if m, ok := c.store.Find(u.Destination.ID); ok &&
		m.Status == message.WaitingForUpload {
		c.setStatus(m.LocalID, message.Error)
		c.reportFailure(uploadFailedEvent, errors.Errorf(uploadFailedErr,
			u.ID, u.ErrorText))
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	kept := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// uploadListener forwards coordinator callbacks for this conversation into
// the controller goroutine. The coordinator calls it with its lock held, so
// it only posts.
type uploadListener struct {
	c *Controller
}

func (l *uploadListener) mine(u upload.Upload) bool {
	return u.AccountID == l.c.params.AccountID &&
		u.Destination.Kind == upload.ToMessage &&
		u.Destination.PeerID == l.c.peer.ID
}

func (l *uploadListener) OnAdded(uploads []upload.Upload) {
	var mine []upload.Upload
	for _, u := range uploads {
		if l.mine(u) {
			mine = append(mine, u)
		}
	}
	if len(mine) == 0 {
		return
	}
	l.c.post(func() {
		for _, u := range mine {
			if _, exists := l.c.services.Uploads.Lookup(u.ID); exists {
				l.c.uploadDest[u.ID] = u.Destination.ID
			}
		}
		l.c.services.Metrics.uploads(l.c.services.Uploads.Len())
		l.c.notify(Notification{Uploads: true})
	})
}

func (l *uploadListener) OnRemoved(ids []upload.ID) {
	l.c.post(func() {
		l.c.services.Metrics.uploads(l.c.services.Uploads.Len())
		l.c.onUploadsRemoved(ids)
	})
}

func (l *uploadListener) OnProgress(id upload.ID, percent int) {
	l.c.post(func() {
		if _, ok := l.c.uploadDest[id]; ok {
			jww.TRACE.Printf("[Conversation] Upload %s at %d%%", id, percent)
			l.c.notify(Notification{Uploads: true})
		}
	})
}

func (l *uploadListener) OnStatusChanged(u upload.Upload) {
	if !l.mine(u) {
		return
	}
	l.c.post(func() { l.c.onUploadChanged(u) })
}

func (l *uploadListener) OnResult(u upload.Upload, result message.Attachment) {
	if !l.mine(u) {
		return
	}
	l.c.post(func() {
		l.c.services.Metrics.uploads(l.c.services.Uploads.Len())
		l.c.onUploadResult(u, result)
	})
}
