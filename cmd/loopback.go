////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/upload"
	"gitlab.com/xx_network/primitives/netTime"
)

// errOffline is returned by every loopbackNetwork call when it is offline.
var errOffline = errors.New("loopback server is offline")

// loopbackNetwork acknowledges every request locally. Remote IDs continue
// from the highest one seen in the opened conversation.
type loopbackNetwork struct {
	nextRemote int64
	offline    bool
	mux        sync.Mutex
}

// observe moves the remote ID counter past the messages.
func (n *loopbackNetwork) observe(msgs []message.Message) {
	n.mux.Lock()
	defer n.mux.Unlock()
	for _, m := range msgs {
		if m.RemoteID >= n.nextRemote {
			n.nextRemote = m.RemoteID + 1
		}
	}
	if n.nextRemote == 0 {
		n.nextRemote = 1
	}
}

func (n *loopbackNetwork) setOffline(offline bool) {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.offline = offline
}

func (n *loopbackNetwork) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mux.Lock()
	defer n.mux.Unlock()
	if n.offline {
		return errOffline
	}
	return nil
}

func (n *loopbackNetwork) Send(ctx context.Context,
	req conversation.SendRequest) (int64, error) {
	if err := n.check(ctx); err != nil {
		return 0, err
	}
	n.mux.Lock()
	defer n.mux.Unlock()
	id := n.nextRemote
	n.nextRemote++
	jww.DEBUG.Printf("[Loopback] Acknowledged %d as %d (encrypted: %t)",
		req.LocalID, id, req.Encrypted)
	return id, nil
}

func (n *loopbackNetwork) Edit(ctx context.Context, _ message.Peer,
	remoteID int64, text string, atts []message.Attachment,
	fwds []int64) (message.Message, error) {
	if err := n.check(ctx); err != nil {
		return message.Message{}, err
	}
	return message.Message{LocalID: remoteID, RemoteID: remoteID,
		Status: message.Sent, Text: text, Attachments: atts,
		Forwards: fwds, Timestamp: netTime.Now()}, nil
}

func (n *loopbackNetwork) Delete(ctx context.Context, _ message.Peer,
	remoteIDs []int64, _ bool) ([]bool, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	deleted := make([]bool, len(remoteIDs))
	for i := range deleted {
		deleted[i] = true
	}
	return deleted, nil
}

func (n *loopbackNetwork) Restore(ctx context.Context, _ message.Peer,
	_ int64) error {
	return n.check(ctx)
}

func (n *loopbackNetwork) MarkAsRead(ctx context.Context, _ message.Peer,
	_ int64) error {
	return n.check(ctx)
}

func (n *loopbackNetwork) React(ctx context.Context, _ message.Peer, _ int64,
	_ *int64) error {
	return n.check(ctx)
}

func (n *loopbackNetwork) Pin(ctx context.Context, _ message.Peer,
	_ int64) error {
	return n.check(ctx)
}

func (n *loopbackNetwork) Unpin(ctx context.Context, _ message.Peer) error {
	return n.check(ctx)
}

func (n *loopbackNetwork) MarkImportant(ctx context.Context, _ message.Peer,
	_ []int64, _ bool) error {
	return n.check(ctx)
}

// loopbackTransport "uploads" local files by checking they can be read.
type loopbackTransport struct {
	mux    sync.Mutex
	nextID int64
}

func (t *loopbackTransport) Upload(ctx context.Context, u upload.Upload,
	progress upload.ProgressFunc) (message.Attachment, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return message.Attachment{}, errors.Wrapf(err, "cannot open %s",
			u.Path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return message.Attachment{}, errors.Wrapf(err, "cannot stat %s",
			u.Path)
	}
	progress(50)
	if err = ctx.Err(); err != nil {
		return message.Attachment{}, err
	}
	progress(100)

	t.mux.Lock()
	t.nextID++
	id := t.nextID
	t.mux.Unlock()
	jww.DEBUG.Printf("[Loopback] Stored %s (%d bytes) as %d", u.Path,
		info.Size(), id)
	return message.Attachment{
		Type: u.Destination.Method.AttachmentType(),
		ID:   id,
		Name: filepath.Base(u.Path),
	}, nil
}
