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

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/draft"
	"gitlab.com/elixxir/chatsync/encryption"
	"gitlab.com/elixxir/chatsync/keyStore"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/reconciler"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/elixxir/ekv"
)

func sendText(t *testing.T, c *Controller, text string) int64 {
	ctx := context.Background()
	require.NoError(t, c.SetText(ctx, text))
	localID, err := c.Send(ctx)
	require.NoError(t, err)
	return localID
}

func findMessage(s Snapshot, localID int64) (message.Message, bool) {
	for _, m := range s.Messages {
		if m.LocalID == localID {
			return m, true
		}
	}
	return message.Message{}, false
}

// Messages are dispatched one at a time in the order they were sent.
func TestController_Send_Order(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())

	first := sendText(t, c, "one")
	second := sendText(t, c, "two")
	sendText(t, c, "three")
	require.Greater(t, second, first)
	require.True(t, message.IsClientLocalID(first))

	snap := waitFor(t, c, func(s Snapshot) bool {
		return len(s.Messages) == 3 && allSent(s)
	})

	reqs := env.net.requests()
	require.Len(t, reqs, 3)
	for i, text := range []string{"one", "two", "three"} {
		if reqs[i].Text != text {
			t.Errorf("Request %d has wrong text.\nexpected: %q\nreceived: %q",
				i, text, reqs[i].Text)
		}
		require.NotZero(t, reqs[i].RandomID)
	}

	// Sent messages are re-keyed to their remote IDs
	for _, m := range snap.Messages {
		require.Equal(t, m.RemoteID, m.LocalID)
		require.GreaterOrEqual(t, m.RemoteID, int64(1000))
	}
	require.Empty(t, snap.Draft.Text)
	require.Zero(t, snap.Draft.DraftID)
}

func TestController_Send_Empty(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())

	_, err := c.Send(context.Background())
	require.ErrorIs(t, err, draft.ErrNothingToSend)

	require.NoError(t, c.SetText(context.Background(), "   "))
	_, err = c.Send(context.Background())
	require.ErrorIs(t, err, draft.ErrNothingToSend)
}

// A failed dispatch stops the queue until the network comes back.
func TestController_Send_StopsOnFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	block := make(chan struct{})
	env.net.setBlock(block)
	first := sendText(t, c, "first")
	second := sendText(t, c, "second")

	env.net.setFail(true)
	env.net.setBlock(nil)
	close(block)

	waitFor(t, c, func(s Snapshot) bool {
		m, _ := findMessage(s, first)
		return m.Status == message.Error
	})
	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	m, _ := findMessage(snap, second)
	require.Equal(t, message.Queue, m.Status)
	require.True(t, env.reporter.has(sendFailedEvent))

	// Unsent messages sort first
	require.Equal(t, []message.Status{message.Queue, message.Error},
		statuses(snap.Messages))

	env.net.setFail(false)
	require.NoError(t, c.NetworkChanged(ctx, false))
	require.NoError(t, c.NetworkChanged(ctx, true))
	waitFor(t, c, func(s Snapshot) bool {
		return len(s.Messages) == 2 && allSent(s)
	})

	reqs := env.net.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "first", reqs[0].Text)
	require.Equal(t, "second", reqs[1].Text)
}

func TestController_Retry(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	ctx := context.Background()

	env.net.setFail(true)
	localID := sendText(t, c, "hello")
	waitFor(t, c, func(s Snapshot) bool {
		m, _ := findMessage(s, localID)
		return m.Status == message.Error
	})

	env.net.setFail(false)
	require.NoError(t, c.Retry(ctx, localID))
	snap := waitFor(t, c, allSent)
	require.Len(t, snap.Messages, 1)

	err := c.Retry(ctx, snap.Messages[0].LocalID)
	require.ErrorIs(t, err, ErrNotPermitted)
	require.ErrorIs(t, c.Retry(ctx, 5), ErrUnknownMessage)
}

// The server echo of a message sent offline replaces the local entry
// whichever of the echo and the acknowledgement arrives first.
func TestController_Send_ServerEcho(t *testing.T) {
	for _, echoFirst := range []bool{true, false} {
		env := newTestEnv(t)
		c := env.open(t, testParams())

		block := make(chan struct{})
		env.net.setBlock(block)
		env.net.setNextRemote(999)
		localID := sendText(t, c, "offline")

		snap := waitFor(t, c, func(s Snapshot) bool {
			m, _ := findMessage(s, localID)
			return m.Status == message.Sending
		})
		m, _ := findMessage(snap, localID)
		echo := reconciler.NewMessage{Message: message.Message{
			RemoteID: 999,
			Status:   message.Sent,
			Text:     "offline",
			SenderID: 1,
			Out:      true,
			RandomID: m.RandomID,
		}}

		if echoFirst {
			require.NoError(t, c.HandleEvents([]reconciler.Event{echo}))
			close(block)
		} else {
			close(block)
			waitFor(t, c, allSent)
			require.NoError(t, c.HandleEvents([]reconciler.Event{echo}))
		}

		snap = waitFor(t, c, func(s Snapshot) bool {
			return allSent(s) && len(s.Messages) == 1
		})
		require.Equal(t, int64(999), snap.Messages[0].LocalID)
		require.Equal(t, int64(999), snap.Messages[0].RemoteID)
		require.Equal(t, "offline", snap.Messages[0].Text)

		// A replay changes nothing
		require.NoError(t, c.HandleEvents([]reconciler.Event{echo}))
		snap = waitFor(t, c, func(s Snapshot) bool { return true })
		require.Len(t, snap.Messages, 1)
		require.NoError(t, c.Close())
	}
}

// A draft whose message was stored before the draft was cleared is dropped
// on reopen, so the message is never sent twice.
func TestController_Open_DraftAlreadySent(t *testing.T) {
	env := newTestEnv(t)
	const draftID = message.LocalIDBase + 7

	session := draft.NewSession(
		env.kv.Prefix(versioned.MakeConversationPrefix(testPeer.ID)), 0)
	_, err := session.Load()
	require.NoError(t, err)
	session.EnsureDraftID(func() int64 { return draftID })
	session.SetText("crash")
	session.Checkpoint()
	session.Close()

	require.NoError(t, env.backend.UpsertMessages([]message.Message{{
		ConversationID: testPeer.ID,
		LocalID:        draftID,
		Status:         message.Queue,
		Text:           "crash",
		Out:            true,
		RandomID:       42,
	}}))

	c := env.open(t, testParams())
	snap := waitFor(t, c, allSent)
	require.Len(t, snap.Messages, 1)
	require.Empty(t, snap.Draft.Text)
	require.Zero(t, snap.Draft.DraftID)
	require.Len(t, env.net.requests(), 1)
	require.Equal(t, int64(42), env.net.requests()[0].RandomID)
}

// A draft that was never sent keeps its ID, and new messages get IDs past
// it.
func TestController_Open_DraftRestored(t *testing.T) {
	env := newTestEnv(t)
	const draftID = message.LocalIDBase + 7

	session := draft.NewSession(
		env.kv.Prefix(versioned.MakeConversationPrefix(testPeer.ID)), 0)
	_, err := session.Load()
	require.NoError(t, err)
	session.EnsureDraftID(func() int64 { return draftID })
	session.SetText("unsent")
	session.Checkpoint()
	session.Close()

	c := env.open(t, testParams())
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "unsent", snap.Draft.Text)
	require.Equal(t, draftID, snap.Draft.DraftID)

	localID, err := c.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, draftID, localID)
	waitFor(t, c, allSent)

	next := sendText(t, c, "next")
	require.Greater(t, next, draftID)
}

// Messages left Sending by a crash fail on reopen and go out when the
// network comes back.
func TestController_Open_InterruptedSend(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.backend.UpsertMessages([]message.Message{{
		ConversationID: testPeer.ID,
		LocalID:        message.LocalIDBase,
		Status:         message.Sending,
		Text:           "interrupted",
		Out:            true,
		RandomID:       7,
	}}))

	c := env.open(t, testParams())
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []message.Status{message.Error}, statuses(snap.Messages))

	require.NoError(t, c.NetworkChanged(context.Background(), true))
	snap = waitFor(t, c, allSent)
	require.Equal(t, "interrupted", snap.Messages[0].Text)
}

// A delivered message without a status is stored as sent and never goes
// back out through the send queue.
func TestController_HandleEvents_DeliveredWithoutStatus(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())

	require.NoError(t, c.HandleEvents([]reconciler.Event{
		reconciler.NewMessage{Message: message.Message{RemoteID: 7,
			SenderID: testPeer.ID, Text: "from peer"}},
	}))
	sendText(t, c, "mine")

	snap := waitFor(t, c, func(s Snapshot) bool {
		return len(s.Messages) == 2 && allSent(s)
	})
	reqs := env.net.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "mine", reqs[0].Text)

	m, ok := findMessage(snap, 7)
	require.True(t, ok)
	require.Equal(t, int64(7), m.RemoteID)
	require.Equal(t, "from peer", m.Text)
	require.False(t, m.Out)
}

// Sending persists across a restart of the controller.
func TestController_Reopen(t *testing.T) {
	env := newTestEnv(t)
	c := env.open(t, testParams())
	sendText(t, c, "kept")
	waitFor(t, c, allSent)
	require.NoError(t, c.SetText(context.Background(), "draft"))
	require.NoError(t, c.Close())

	c = env.open(t, testParams())
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "kept", snap.Messages[0].Text)
	require.Equal(t, "draft", snap.Draft.Text)
}

// With encryption on, only the sealed body leaves the device and the peer
// can open it.
func TestController_Send_Encrypted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	peerKeys := keyStore.New(versioned.NewKV(ekv.MakeMemstore()), nil)
	keys := keyStore.New(env.kv, &keyStore.Loopback{Partner: peerKeys})
	negotiator, err := encryption.NewNegotiator(1, env.kv, keys, env.reporter)
	require.NoError(t, err)
	require.NoError(t, negotiator.AcceptDisclaimer())
	require.NoError(t, negotiator.InitiateExchange(ctx, testPeer,
		encryption.Persist))
	negotiator.Wait()
	require.NoError(t, negotiator.Enable(testPeer, encryption.Persist))

	services := env.services()
	services.Encryption = negotiator
	c, err := Open(testPeer, services, testParams())
	require.NoError(t, err)
	defer c.Close()

	sendText(t, c, "secret")
	snap := waitFor(t, c, allSent)
	require.True(t, snap.Messages[0].Encrypted)
	require.True(t, snap.Encryption.Enabled)

	reqs := env.net.requests()
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].Encrypted)
	require.Empty(t, reqs[0].Text)

	opened, err := peerKeys.Open(testPeer.ID, 1, encryption.RAM, reqs[0].Sealed)
	require.NoError(t, err)
	require.Equal(t, "secret", string(opened))
}

// A message that cannot be sealed fails instead of going out in the clear.
func TestController_Send_SealFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	keys := keyStore.New(env.kv, &keyStore.Loopback{})
	negotiator, err := encryption.NewNegotiator(1, env.kv, keys, env.reporter)
	require.NoError(t, err)
	require.NoError(t, negotiator.AcceptDisclaimer())
	require.NoError(t, negotiator.InitiateExchange(ctx, testPeer,
		encryption.RAM))
	negotiator.Wait()
	require.NoError(t, negotiator.Enable(testPeer, encryption.RAM))
	require.NoError(t, keys.Delete(1, testPeer.ID, encryption.RAM))

	services := env.services()
	services.Encryption = negotiator
	c, err := Open(testPeer, services, testParams())
	require.NoError(t, err)
	defer c.Close()

	localID := sendText(t, c, "secret")
	waitFor(t, c, func(s Snapshot) bool {
		m, _ := findMessage(s, localID)
		return m.Status == message.Error
	})
	require.Empty(t, env.net.requests())
}
