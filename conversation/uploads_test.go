////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/draft"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/upload"
)

func uploadIDOf(t *testing.T, d draft.Draft, path string) upload.ID {
	for _, entry := range d.Attachments() {
		if entry.IsUpload && entry.Upload.Path == path {
			return upload.ID(entry.Upload.UploadID)
		}
	}
	t.Fatalf("No pending upload for %s in draft %+v", path, d)
	return ""
}

func resolved(d draft.Draft) int {
	n := 0
	for _, entry := range d.Attachments() {
		if !entry.IsUpload && entry.Attachment != nil {
			n++
		}
	}
	return n
}

// Cancelling one of two photos leaves exactly the other in the draft, even
// though the first finishes after the cancel.
func TestController_AttachFiles_CancelOne(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	entryIDs, err := c.AttachFiles(ctx,
		FileIntent{Path: "a.jpg", Size: 10, Method: upload.Photo},
		FileIntent{Path: "b.jpg", Size: 20, Method: upload.Photo})
	require.NoError(t, err)
	require.Len(t, entryIDs, 2)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Draft.AttachmentCount())
	require.NotZero(t, snap.Draft.DraftID)
	require.Len(t, snap.Uploads, 2)

	require.NoError(t, c.CancelUpload(ctx, uploadIDOf(t, snap.Draft, "b.jpg")))
	env.transport.release("a.jpg", nil)

	snap = waitFor(t, c, func(s Snapshot) bool { return resolved(s.Draft) == 1 })
	require.Equal(t, 1, snap.Draft.AttachmentCount())
	require.Empty(t, snap.Uploads)
	require.Zero(t, env.uploads.Len())

	atts, _ := snap.Draft.Content()
	require.Equal(t, "a.jpg", atts[0].Name)
	require.Equal(t, message.Photo, atts[0].Type)

	_, err = c.Send(ctx)
	require.NoError(t, err)
	snap = waitFor(t, c, allSent)
	require.Len(t, snap.Messages[0].Attachments, 1)
	require.Equal(t, 0, snap.Draft.AttachmentCount())
}

// Removing an entry cancels its upload.
func TestController_RemoveAttachment(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	entryIDs, err := c.AttachFiles(ctx, FileIntent{Path: "a.mp4",
		Method: upload.Video})
	require.NoError(t, err)
	require.Equal(t, 1, env.uploads.Len())

	require.NoError(t, c.RemoveAttachment(ctx, entryIDs[0]))
	require.Zero(t, env.uploads.Len())
	require.Error(t, c.RemoveAttachment(ctx, entryIDs[0]))

	// Finishing the aborted transfer changes nothing
	env.transport.release("a.mp4", nil)
	snap := waitFor(t, c, func(s Snapshot) bool { return len(s.Uploads) == 0 })
	require.Zero(t, snap.Draft.AttachmentCount())

	require.Error(t, c.CancelUpload(ctx, "unknown"))
}

// A message sent with running uploads waits for them and then goes out.
func TestController_Send_WaitsForUpload(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	_, err := c.AttachFiles(ctx, FileIntent{Path: "a.pdf"})
	require.NoError(t, err)
	require.NoError(t, c.SetText(ctx, "caption"))
	localID, err := c.Send(ctx)
	require.NoError(t, err)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	m, _ := findMessage(snap, localID)
	require.Equal(t, message.WaitingForUpload, m.Status)
	require.Zero(t, snap.Draft.AttachmentCount())
	require.Empty(t, env.net.requests())

	env.transport.release("a.pdf", nil)
	snap = waitFor(t, c, allSent)
	reqs := env.net.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "caption", reqs[0].Text)
	require.Len(t, reqs[0].Attachments, 1)
	require.Equal(t, message.Document, reqs[0].Attachments[0].Type)
	require.Len(t, snap.Messages[0].Attachments, 1)
}

// A failed upload fails its message; the message goes out once the upload
// succeeds on retry.
func TestController_Send_UploadFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	_, err := c.AttachFiles(ctx, FileIntent{Path: "a.ogg",
		Method: upload.Audio})
	require.NoError(t, err)
	localID, err := c.Send(ctx)
	require.NoError(t, err)

	env.transport.release("a.ogg", errors.New("connection reset"))
	waitFor(t, c, func(s Snapshot) bool {
		m, _ := findMessage(s, localID)
		return m.Status == message.Error
	})
	require.True(t, env.reporter.has(uploadFailedEvent))

	require.NoError(t, c.NetworkChanged(ctx, true))
	snap := waitFor(t, c, func(s Snapshot) bool {
		m, _ := findMessage(s, localID)
		return m.Status == message.WaitingForUpload
	})
	require.Len(t, snap.Messages, 1)

	env.transport.release("a.ogg", nil)
	snap = waitFor(t, c, allSent)
	require.Equal(t, message.Audio, snap.Messages[0].Attachments[0].Type)
}

// A draft with a failed upload cannot be sent.
func TestController_Send_FailedUploadInDraft(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	_, err := c.AttachFiles(ctx, FileIntent{Path: "a.jpg",
		Method: upload.Photo})
	require.NoError(t, err)
	env.transport.release("a.jpg", errors.New("too slow"))
	waitFor(t, c, func(s Snapshot) bool {
		return len(s.Uploads) == 1 && s.Uploads[0].Status == upload.Error
	})

	_, err = c.Send(ctx)
	require.ErrorIs(t, err, draft.ErrUploadNotResolved)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Messages)
	require.Equal(t, 1, snap.Draft.AttachmentCount())
}

// Uploads of other conversations are ignored.
func TestController_Uploads_OtherConversation(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	other, err := Open(message.Peer{ID: 3, Kind: message.User},
		env.services(), testParams())
	require.NoError(t, err)
	defer other.Close()
	ctx := context.Background()

	_, err = c.AttachFiles(ctx, FileIntent{Path: "mine.jpg",
		Method: upload.Photo})
	require.NoError(t, err)
	_, err = other.AttachFiles(ctx, FileIntent{Path: "theirs.jpg",
		Method: upload.Photo})
	require.NoError(t, err)

	env.transport.release("mine.jpg", nil)
	env.transport.release("theirs.jpg", nil)
	snap := waitFor(t, c, func(s Snapshot) bool { return resolved(s.Draft) == 1 })
	atts, _ := snap.Draft.Content()
	require.Len(t, atts, 1)
	require.Equal(t, "mine.jpg", atts[0].Name)

	otherSnap := waitFor(t, other, func(s Snapshot) bool {
		return resolved(s.Draft) == 1
	})
	atts, _ = otherSnap.Draft.Content()
	require.Equal(t, "theirs.jpg", atts[0].Name)
}

// A message with two uploads waits for both, even when both results are
// queued before the controller handles the first.
func TestController_Send_ResultsQueuedTogether(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	_, err := c.AttachFiles(ctx,
		FileIntent{Path: "a.jpg", Method: upload.Photo},
		FileIntent{Path: "bb.jpg", Method: upload.Photo})
	require.NoError(t, err)
	_, err = c.Send(ctx)
	require.NoError(t, err)

	hold := make(chan struct{})
	require.True(t, c.post(func() { <-hold }))
	env.transport.release("a.jpg", nil)
	env.transport.release("bb.jpg", nil)
	require.Eventually(t, func() bool { return env.uploads.Len() == 0 },
		waitTimeout, time.Millisecond)
	close(hold)

	snap := waitFor(t, c, allSent)
	reqs := env.net.requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Attachments, 2)
	require.Len(t, snap.Messages[0].Attachments, 2)
	require.Empty(t, snap.Messages[0].PendingUploads)
	require.Empty(t, env.uploads.Completions(1, testPeer.ID))
}

// An upload that finishes while the conversation is closed is attached when
// it opens again, and the message goes out with it.
func TestController_Reopen_UploadFinishedWhileClosed(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	require.NoError(t, c.SetText(ctx, "photo"))
	_, err := c.AttachFiles(ctx, FileIntent{Path: "a.jpg",
		Method: upload.Photo})
	require.NoError(t, err)
	_, err = c.Send(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	env.transport.release("a.jpg", nil)
	require.Eventually(t, func() bool {
		return len(env.uploads.Completions(1, testPeer.ID)) == 1
	}, waitTimeout, time.Millisecond)
	require.Empty(t, env.net.requests())

	c = env.open(t, testParams())
	snap := waitFor(t, c, allSent)
	reqs := env.net.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "photo", reqs[0].Text)
	require.Len(t, reqs[0].Attachments, 1)
	require.Equal(t, "a.jpg", reqs[0].Attachments[0].Name)
	require.Len(t, snap.Messages, 1)
	require.Empty(t, env.uploads.Completions(1, testPeer.ID))
}

// A message whose upload vanished without a result fails on open and is
// never sent without its attachment.
func TestController_Reopen_UploadLost(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	require.NoError(t, c.SetText(ctx, "photo"))
	_, err := c.AttachFiles(ctx, FileIntent{Path: "a.jpg",
		Method: upload.Photo})
	require.NoError(t, err)
	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	uploadID := uploadIDOf(t, snap.Draft, "a.jpg")
	localID, err := c.Send(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, env.uploads.Cancel(uploadID))

	c = env.open(t, testParams())
	snap, err = c.Snapshot(ctx)
	require.NoError(t, err)
	m, ok := findMessage(snap, localID)
	require.True(t, ok)
	require.Equal(t, message.Error, m.Status)

	err = c.Retry(ctx, localID)
	require.ErrorIs(t, err, draft.ErrUploadNotResolved)
	require.NoError(t, c.NetworkChanged(ctx, true))

	snap, err = c.Snapshot(ctx)
	require.NoError(t, err)
	m, _ = findMessage(snap, localID)
	require.Equal(t, message.Error, m.Status)
	require.Zero(t, env.net.total())
}
