////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messageStore

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage/versioned"
)

const (
	kvMessagePrefix       = "ChatMessages"
	kvIndexKey            = "index"
	kvIndexVersion        = 0
	kvMessageVersion      = 0
	kvConversationKey     = "conversation"
	kvConversationVersion = 0
	kvMessageKeyPrefix    = "message:"
)

// Error messages.
const (
	kvDeleteMessageErr     = "failed to delete message %d"
	kvLoadMessageErr       = "failed to load message %d"
	kvConversationLoadErr  = "failed to load conversation %d"
	kvConversationStoreErr = "failed to store conversation %d"
	kvIndexLoadErr         = "failed to load message index of %d"
)

// kvBackend stores each message as its own versioned object plus an index of
// local IDs per conversation.
type kvBackend struct {
	kv *versioned.KV
}

// NewKVBackend returns a Backend over a versioned KV.
func NewKVBackend(kv *versioned.KV) Backend {
	return &kvBackend{kv: kv.Prefix(kvMessagePrefix)}
}

func (b *kvBackend) conversationKV(conversationID int64) *versioned.KV {
	return b.kv.Prefix(versioned.MakeConversationPrefix(conversationID))
}

func makeMessageKey(localID int64) string {
	return kvMessageKeyPrefix + strconv.FormatInt(localID, 10)
}

func (b *kvBackend) loadIndex(kv *versioned.KV) (map[int64]struct{}, error) {
	var ids []int64
	err := kv.GetJSON(kvIndexKey, kvIndexVersion, &ids)
	if err != nil && kv.Exists(err) {
		return nil, err
	}
	index := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}
	return index, nil
}

func (b *kvBackend) storeIndex(kv *versioned.KV, index map[int64]struct{}) error {
	ids := make([]int64, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return kv.SetJSON(kvIndexKey, kvIndexVersion, ids)
}

// UpsertMessages writes each message and then the index.
func (b *kvBackend) UpsertMessages(msgs []message.Message) error {
	byConversation := make(map[int64][]message.Message)
	for _, m := range msgs {
		byConversation[m.ConversationID] =
			append(byConversation[m.ConversationID], m)
	}

	for conversationID, batch := range byConversation {
		kv := b.conversationKV(conversationID)
		index, err := b.loadIndex(kv)
		if err != nil {
			return errors.WithMessagef(err, kvIndexLoadErr, conversationID)
		}
		for _, m := range batch {
			if err = kv.SetJSON(
				makeMessageKey(m.LocalID), kvMessageVersion, m); err != nil {
				return err
			}
			index[m.LocalID] = struct{}{}
		}
		if err = b.storeIndex(kv, index); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMessages removes the messages and drops them from the index.
func (b *kvBackend) DeleteMessages(conversationID int64, localIDs []int64) error {
	kv := b.conversationKV(conversationID)
	index, err := b.loadIndex(kv)
	if err != nil {
		return errors.WithMessagef(err, kvIndexLoadErr, conversationID)
	}
	for _, id := range localIDs {
		err = kv.Delete(makeMessageKey(id), kvMessageVersion)
		if err != nil && kv.Exists(err) {
			return errors.WithMessagef(err, kvDeleteMessageErr, id)
		}
		delete(index, id)
	}
	return b.storeIndex(kv, index)
}

// RekeyMessage copies the message to its new key and deletes the old one.
func (b *kvBackend) RekeyMessage(conversationID, oldLocalID, newLocalID int64) error {
	kv := b.conversationKV(conversationID)
	var m message.Message
	if err := kv.GetJSON(makeMessageKey(oldLocalID), kvMessageVersion, &m); err != nil {
		if !kv.Exists(err) {
			return nil
		}
		return errors.WithMessagef(err, kvLoadMessageErr, oldLocalID)
	}
	m.LocalID = newLocalID
	if err := b.UpsertMessages([]message.Message{m}); err != nil {
		return err
	}
	return b.DeleteMessages(conversationID, []int64{oldLocalID})
}

// LoadMessages reads every indexed message. Missing entries are skipped.
func (b *kvBackend) LoadMessages(conversationID int64) ([]message.Message, error) {
	kv := b.conversationKV(conversationID)
	index, err := b.loadIndex(kv)
	if err != nil {
		return nil, errors.WithMessagef(err, kvIndexLoadErr, conversationID)
	}
	msgs := make([]message.Message, 0, len(index))
	for id := range index {
		var m message.Message
		if err = kv.GetJSON(makeMessageKey(id), kvMessageVersion, &m); err != nil {
			if !kv.Exists(err) {
				continue
			}
			return nil, errors.WithMessagef(err, kvLoadMessageErr, id)
		}
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].LocalID < msgs[j].LocalID
	})
	return msgs, nil
}

// SaveConversation stores the aggregate.
func (b *kvBackend) SaveConversation(c message.Conversation) error {
	kv := b.conversationKV(c.Peer.ID)
	err := kv.SetJSON(kvConversationKey, kvConversationVersion, c)
	return errors.WithMessagef(err, kvConversationStoreErr, c.Peer.ID)
}

// LoadConversation reads the aggregate.
func (b *kvBackend) LoadConversation(
	conversationID int64) (message.Conversation, bool, error) {
	kv := b.conversationKV(conversationID)
	var c message.Conversation
	err := kv.GetJSON(kvConversationKey, kvConversationVersion, &c)
	if err != nil {
		if !kv.Exists(err) {
			return message.Conversation{}, false, nil
		}
		return message.Conversation{}, false,
			errors.WithMessagef(err, kvConversationLoadErr, conversationID)
	}
	return c, true, nil
}
