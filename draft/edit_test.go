////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package draft

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/message"
)

func TestEditSession(t *testing.T) {
	original := message.Message{
		LocalID:     999,
		RemoteID:    999,
		Status:      message.Sent,
		Text:        "original",
		Out:         true,
		Attachments: []message.Attachment{{Type: message.Photo, ID: 1}},
		Forwards:    []int64{5, 6},
	}
	e := StartEdit(original)
	require.Equal(t, 3, e.AttachmentCount())
	require.Equal(t, message.Editing, e.WorkingCopy().Status)

	e.SetText("changed")
	ids := e.AppendAttachments(uploadEntry("u"))
	_, err := e.Build()
	require.True(t, errors.Is(err, ErrUploadNotResolved))

	e.ResolveUpload("u", message.Attachment{Type: message.Document, ID: 2})
	built, err := e.Build()
	require.NoError(t, err)
	require.Equal(t, int64(999), built.RemoteID)
	require.Equal(t, message.Sent, built.Status)
	require.Equal(t, "changed", built.Text)
	require.Equal(t, []int64{5, 6}, built.Forwards)
	require.Len(t, built.Attachments, 2)

	// Working copy edits never touch the original.
	_, ok := e.RemoveAttachment(ids[0])
	require.True(t, ok)
	require.Equal(t, "original", e.Original().Text)
	require.Len(t, e.Original().Attachments, 1)

	e.SetText("")
	for _, entry := range e.Attachments() {
		e.RemoveAttachment(entry.ID)
	}
	_, err = e.Build()
	require.True(t, errors.Is(err, ErrNothingToSend))
}
