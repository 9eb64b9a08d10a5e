////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"context"

	"gitlab.com/elixxir/chatsync/message"
)

// SendRequest is one outgoing message handed to the Network.
type SendRequest struct {
	Peer        message.Peer
	LocalID     int64
	RandomID    int64
	Text        string
	Attachments []message.Attachment
	Forwards    []int64

	// Encrypted is set when Sealed replaces Text as the body.
	Encrypted bool
	Sealed    []byte
}

// Network is the remote message API. Calls are at-least-once; duplicates
// are absorbed through random and remote IDs.
type Network interface {
	// Send delivers the message and returns its remote ID.
	Send(ctx context.Context, req SendRequest) (int64, error)

	// Edit replaces the content of a sent message and returns the message as
	// stored by the server.
	Edit(ctx context.Context, peer message.Peer, remoteID int64, text string,
		attachments []message.Attachment, forwards []int64) (message.Message, error)

	// Delete removes messages and reports per message whether it was deleted.
	Delete(ctx context.Context, peer message.Peer, remoteIDs []int64,
		forAll bool) ([]bool, error)

	// Restore undoes a delete that was not for everyone.
	Restore(ctx context.Context, peer message.Peer, remoteID int64) error

	// MarkAsRead marks every incoming message up to upTo as read.
	MarkAsRead(ctx context.Context, peer message.Peer, upTo int64) error

	// React sets the viewer's reaction; nil removes it.
	React(ctx context.Context, peer message.Peer, remoteID int64,
		reactionID *int64) error

	Pin(ctx context.Context, peer message.Peer, remoteID int64) error
	Unpin(ctx context.Context, peer message.Peer) error

	MarkImportant(ctx context.Context, peer message.Peer, remoteIDs []int64,
		important bool) error
}
