////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package draft

import (
	"strings"

	"gitlab.com/elixxir/chatsync/message"
)

// entries is the ordered attachment list shared by drafts and edits.
type entries struct {
	List   []message.AttachmentEntry `json:"list"`
	NextID int64                     `json:"nextID"`
}

func (e *entries) clone() entries {
	out := entries{NextID: e.NextID}
	if e.List != nil {
		out.List = make([]message.AttachmentEntry, len(e.List))
		for i := range e.List {
			out.List[i] = e.List[i].Clone()
		}
	}
	return out
}

// add appends entries, assigning each a new entry ID.
func (e *entries) add(added []message.AttachmentEntry) []int64 {
	ids := make([]int64, len(added))
	for i, entry := range added {
		e.NextID++
		entry = entry.Clone()
		entry.ID = e.NextID
		e.List = append(e.List, entry)
		ids[i] = entry.ID
	}
	return ids
}

func (e *entries) remove(entryID int64) (message.AttachmentEntry, bool) {
	for i, entry := range e.List {
		if entry.ID == entryID {
			e.List = append(e.List[:i], e.List[i+1:]...)
			return entry, true
		}
	}
	return message.AttachmentEntry{}, false
}

func (e *entries) removeUpload(uploadID string) bool {
	for i, entry := range e.List {
		if entry.IsUpload && entry.Upload != nil &&
			entry.Upload.UploadID == uploadID {
			e.List = append(e.List[:i], e.List[i+1:]...)
			return true
		}
	}
	return false
}

// resolve turns the pending entry for the upload into the attachment at the
// same position. Without a pending entry the attachment is appended.
func (e *entries) resolve(uploadID string, a message.Attachment) bool {
	for i, entry := range e.List {
		if entry.IsUpload && entry.Upload != nil &&
			entry.Upload.UploadID == uploadID {
			e.List[i] = message.AttachmentEntry{ID: entry.ID, Attachment: &a}
			return true
		}
	}
	e.add([]message.AttachmentEntry{{Attachment: &a}})
	return false
}

func (e *entries) count() int {
	n := 0
	for _, entry := range e.List {
		n += entry.Count()
	}
	return n
}

func (e *entries) uploadIDs() []string {
	var ids []string
	for _, entry := range e.List {
		if entry.IsUpload && entry.Upload != nil {
			ids = append(ids, entry.Upload.UploadID)
		}
	}
	return ids
}

// canSend reports whether text plus entries make a sendable message: any
// text, any resolved non-forward attachment, or exactly one forward bundle.
func (e *entries) canSend(text string) bool {
	if strings.TrimSpace(text) != "" {
		return true
	}
	forwards := 0
	for _, entry := range e.List {
		if entry.IsUpload {
			continue
		}
		if entry.IsForward() {
			forwards++
		} else if entry.Attachment != nil {
			return true
		}
	}
	return forwards == 1
}

// split returns the resolved attachments and the forwarded message IDs.
func (e *entries) split() ([]message.Attachment, []int64) {
	var atts []message.Attachment
	var forwards []int64
	for _, entry := range e.List {
		if entry.IsUpload || entry.Attachment == nil {
			continue
		}
		if entry.IsForward() {
			forwards = append(forwards, entry.Attachment.Messages...)
			continue
		}
		atts = append(atts, *entry.Attachment)
	}
	return atts, forwards
}
