////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messageStore

import "gitlab.com/elixxir/chatsync/message"

// Backend is durable storage for messages and conversation aggregates. Rows
// are keyed by (conversation ID, local ID). Implementations need not be safe
// for concurrent use by the same conversation; the Store serialises calls.
type Backend interface {
	// UpsertMessages atomically inserts or replaces the messages.
	UpsertMessages(msgs []message.Message) error

	// DeleteMessages removes the local IDs of a conversation in one batch.
	DeleteMessages(conversationID int64, localIDs []int64) error

	// RekeyMessage moves a message to a new local ID, replacing any row
	// already stored under the new ID.
	RekeyMessage(conversationID, oldLocalID, newLocalID int64) error

	// LoadMessages returns every message of a conversation.
	LoadMessages(conversationID int64) ([]message.Message, error)

	// SaveConversation upserts the conversation aggregate.
	SaveConversation(c message.Conversation) error

	// LoadConversation returns the stored aggregate. The bool is false when
	// nothing is stored yet.
	LoadConversation(conversationID int64) (message.Conversation, bool, error)
}
