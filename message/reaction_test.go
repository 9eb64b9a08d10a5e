////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 { return &v }

func TestMessage_ApplyOwnReaction(t *testing.T) {
	m := &Message{Reactions: []Reaction{{ReactionID: 1, Count: 2}}}

	// New reaction is appended with a count of one.
	m.ApplyOwnReaction(id(2))
	require.Equal(t, int64(2), m.MyReaction)
	require.Equal(t, []Reaction{{1, 2}, {2, 1}}, m.Reactions)

	// Switching decrements the old one, dropping it at zero.
	m.ApplyOwnReaction(id(1))
	require.Equal(t, int64(1), m.MyReaction)
	require.Equal(t, []Reaction{{1, 3}}, m.Reactions)

	// Reapplying the same reaction changes nothing.
	m.ApplyOwnReaction(id(1))
	require.Equal(t, []Reaction{{1, 3}}, m.Reactions)

	// Removing decrements and clears the own reaction.
	m.ApplyOwnReaction(nil)
	require.Equal(t, int64(0), m.MyReaction)
	require.Equal(t, []Reaction{{1, 2}}, m.Reactions)
}

func TestMessage_Clone(t *testing.T) {
	m := Message{
		Attachments: []Attachment{{Type: Forward, Messages: []int64{1, 2}}},
		Reactions:   []Reaction{{1, 1}},
		Keyboard:    &Keyboard{Buttons: [][]Button{{{Label: "ok"}}}},
	}
	c := m.Clone()
	c.Attachments[0].Messages[0] = 9
	c.Reactions[0].Count = 5
	c.Keyboard.Buttons[0][0].Label = "no"

	require.Equal(t, int64(1), m.Attachments[0].Messages[0])
	require.Equal(t, 1, m.Reactions[0].Count)
	require.Equal(t, "ok", m.Keyboard.Buttons[0][0].Label)
}

func TestAttachmentEntry_Count(t *testing.T) {
	fwd := AttachmentEntry{Attachment: &Attachment{
		Type: Forward, Messages: []int64{4, 5, 6}}}
	photo := AttachmentEntry{Attachment: &Attachment{Type: Photo}}
	upload := AttachmentEntry{IsUpload: true,
		Upload: &PendingUpload{UploadID: "u"}}

	require.Equal(t, 3, fwd.Count())
	require.True(t, fwd.IsForward())
	require.Equal(t, 1, photo.Count())
	require.Equal(t, 1, upload.Count())
	require.False(t, upload.IsForward())
}

func TestACL_Flags(t *testing.T) {
	acl := ACL{CanPin: true, IsAdmin: true}
	require.Equal(t, acl, ACLFromFlags(acl.Flags()))
	require.Equal(t, ACL{}, ACLFromFlags(0))
}
