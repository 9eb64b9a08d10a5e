////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package draft

import (
	"gitlab.com/elixxir/chatsync/message"
)

// EditSession is the working copy of a sent message being edited. It is never
// persisted and is owned by a single goroutine.
type EditSession struct {
	original message.Message
	text     string
	entries  entries
}

// StartEdit opens an edit of the message.
func StartEdit(original message.Message) *EditSession {
	e := &EditSession{
		original: original.Clone(),
		text:     original.Text,
	}
	added := make([]message.AttachmentEntry, 0, len(original.Attachments)+1)
	for i := range original.Attachments {
		a := original.Attachments[i]
		added = append(added, message.AttachmentEntry{Attachment: &a})
	}
	if len(original.Forwards) > 0 {
		added = append(added, message.AttachmentEntry{Attachment: &message.Attachment{
			Type:     message.Forward,
			Messages: append([]int64(nil), original.Forwards...),
		}})
	}
	e.entries.add(added)
	return e
}

// Original returns the message as it was when the edit started.
func (e *EditSession) Original() message.Message { return e.original.Clone() }

// LocalID returns the local ID of the edited message.
func (e *EditSession) LocalID() int64 { return e.original.LocalID }

// Text returns the working text.
func (e *EditSession) Text() string { return e.text }

// SetText replaces the working text.
func (e *EditSession) SetText(text string) { e.text = text }

// Attachments returns copies of the working entries.
func (e *EditSession) Attachments() []message.AttachmentEntry {
	return e.entries.clone().List
}

// AppendAttachments appends entries and returns their entry IDs.
func (e *EditSession) AppendAttachments(added ...message.AttachmentEntry) []int64 {
	return e.entries.add(added)
}

// RemoveAttachment removes the entry.
func (e *EditSession) RemoveAttachment(entryID int64) (message.AttachmentEntry, bool) {
	return e.entries.remove(entryID)
}

// RemoveUpload removes the pending entry of the upload.
func (e *EditSession) RemoveUpload(uploadID string) bool {
	return e.entries.removeUpload(uploadID)
}

// ResolveUpload replaces the pending entry in place or appends.
func (e *EditSession) ResolveUpload(uploadID string, a message.Attachment) bool {
	return e.entries.resolve(uploadID, a)
}

// HasUploads returns true while any entry is still an upload.
func (e *EditSession) HasUploads() bool {
	return len(e.entries.uploadIDs()) > 0
}

// UploadIDs returns the IDs of pending uploads in list order.
func (e *EditSession) UploadIDs() []string { return e.entries.uploadIDs() }

// AttachmentCount counts attachments with forward bundle semantics.
func (e *EditSession) AttachmentCount() int { return e.entries.count() }

// WorkingCopy returns the edited message as it would look if saved, with
// status Editing.
func (e *EditSession) WorkingCopy() message.Message {
	m := e.original.Clone()
	m.Text = e.text
	m.Attachments, m.Forwards = e.entries.split()
	m.Status = message.Editing
	return m
}

// Build returns the edited message ready to be saved. It keeps the remote ID
// and status of the original. Fails with ErrUploadNotResolved while any
// upload entry remains.
func (e *EditSession) Build() (message.Message, error) {
	if e.HasUploads() {
		return message.Message{}, ErrUploadNotResolved
	}
	if !e.entries.canSend(e.text) {
		return message.Message{}, ErrNothingToSend
	}
	m := e.WorkingCopy()
	m.Status = e.original.Status
	return m, nil
}
