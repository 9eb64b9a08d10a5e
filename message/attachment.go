////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

import "strconv"

// AttachmentType is the kind of a resolved attachment.
type AttachmentType uint8

const (
	Photo AttachmentType = iota
	Video
	Audio
	Document
	// Forward is a bundle of forwarded messages.
	Forward
)

// String returns the name of the attachment type.
func (t AttachmentType) String() string {
	switch t {
	case Photo:
		return "photo"
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Document:
		return "doc"
	case Forward:
		return "forward"
	default:
		return "INVALID ATTACHMENT TYPE: " + strconv.Itoa(int(t))
	}
}

// Attachment is a resolved media reference or forward bundle.
type Attachment struct {
	Type    AttachmentType `json:"type"`
	ID      int64          `json:"id,omitempty"`
	OwnerID int64          `json:"ownerID,omitempty"`
	Name    string         `json:"name,omitempty"`
	URL     string         `json:"url,omitempty"`

	// Messages holds the forwarded message IDs of a Forward bundle.
	Messages []int64 `json:"messages,omitempty"`
}

// PendingUpload references an upload that has not resolved yet.
type PendingUpload struct {
	UploadID string `json:"uploadID"`
	Path     string `json:"path,omitempty"`
}

// AttachmentEntry is one slot in a draft or edit session. Exactly one of
// Attachment and Upload is set, selected by IsUpload.
type AttachmentEntry struct {
	ID         int64          `json:"id"`
	IsUpload   bool           `json:"isUpload"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	Upload     *PendingUpload `json:"upload,omitempty"`
}

// Count returns how many items the entry contributes to an attachment count.
// A forward bundle counts each forwarded message.
func (e AttachmentEntry) Count() int {
	if !e.IsUpload && e.Attachment != nil && e.Attachment.Type == Forward {
		return len(e.Attachment.Messages)
	}
	return 1
}

// IsForward returns true if the entry is a resolved forward bundle.
func (e AttachmentEntry) IsForward() bool {
	return !e.IsUpload && e.Attachment != nil && e.Attachment.Type == Forward
}

func (a Attachment) clone() Attachment {
	if a.Messages != nil {
		a.Messages = append([]int64(nil), a.Messages...)
	}
	return a
}

// Clone returns a deep copy of the entry.
func (e AttachmentEntry) Clone() AttachmentEntry {
	if e.Attachment != nil {
		a := e.Attachment.clone()
		e.Attachment = &a
	}
	if e.Upload != nil {
		u := *e.Upload
		e.Upload = &u
	}
	return e
}
