////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"context"
	"strconv"
	"time"

	"gitlab.com/elixxir/chatsync/message"
)

// ID uniquely identifies an upload.
type ID string

// Method is the kind of media being uploaded.
type Method uint8

const (
	// AnyMethod matches every method when filtering by destination.
	AnyMethod Method = iota
	Photo
	Video
	Audio
	Document
)

// String returns the name of the method.
func (m Method) String() string {
	switch m {
	case AnyMethod:
		return "any"
	case Photo:
		return "photo"
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Document:
		return "doc"
	default:
		return "INVALID METHOD: " + strconv.Itoa(int(m))
	}
}

// AttachmentType returns the attachment type produced by the method.
func (m Method) AttachmentType() message.AttachmentType {
	switch m {
	case Video:
		return message.Video
	case Audio:
		return message.Audio
	case Document:
		return message.Document
	default:
		return message.Photo
	}
}

// DestinationKind is what an upload is attached to.
type DestinationKind uint8

const (
	// ToMessage targets a message: a draft or a message being edited.
	ToMessage DestinationKind = iota

	// ToConversation targets the conversation itself, such as its photo.
	ToConversation
)

// Destination is where a finished upload belongs. It never changes after the
// upload is created. Message local IDs are only unique within a
// conversation, so PeerID scopes ID.
type Destination struct {
	Kind   DestinationKind
	PeerID int64
	ID     int64
	Method Method
}

// Matches returns true if o targets the same object. AnyMethod on the
// receiver matches every method.
func (d Destination) Matches(o Destination) bool {
	return d.Kind == o.Kind && d.PeerID == o.PeerID && d.ID == o.ID &&
		(d.Method == AnyMethod || d.Method == o.Method)
}

// Status is the state of an upload.
type Status uint8

const (
	Queued Status = iota
	Uploading
	Error
	Cancelling
)

// String prints a human-readable form of the Status for logging and
// debugging. This function adheres to the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Uploading:
		return "uploading"
	case Error:
		return "error"
	case Cancelling:
		return "cancelling"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}

// Intent is a request to upload a file.
type Intent struct {
	AccountID   int64
	Destination Destination
	Path        string
	Size        int64
}

// Upload is the bookkeeping entry of one file upload.
type Upload struct {
	ID          ID
	AccountID   int64
	Destination Destination
	Path        string
	Size        int64
	Status      Status
	Progress    int
	ErrorText   string
	Created     time.Time
}

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(percent int)

// Transport moves file bytes to the server. Upload blocks until the file is
// stored or ctx is cancelled.
type Transport interface {
	Upload(ctx context.Context, u Upload, progress ProgressFunc) (
		message.Attachment, error)
}

// Listener observes the coordinator. Callbacks are made while the coordinator
// is locked: they must not block and must not call back into the
// Coordinator.
type Listener interface {
	OnAdded(uploads []Upload)
	OnRemoved(ids []ID)
	OnProgress(id ID, percent int)
	OnStatusChanged(u Upload)
	OnResult(u Upload, result message.Attachment)
}
