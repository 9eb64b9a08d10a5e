////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// Can be provided to SqlLite to create a temporary, in-memory DB.
	temporaryDbPath = "file:%s?mode=memory&cache=shared"

	// Determines maximum runtime (in seconds) of DB queries.
	dbTimeout = 3 * time.Second
)

// newContext builds a context for database operations.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// marshalOptional encodes v as JSON, leaving empty values as nil.
func marshalOptional(v interface{}, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalOptional(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// buildMessage converts a message.Message into its row.
func buildMessage(m message.Message) (*Message, error) {
	attachments, err := marshalOptional(m.Attachments, len(m.Attachments) == 0)
	if err != nil {
		return nil, err
	}
	forwards, err := marshalOptional(m.Forwards, len(m.Forwards) == 0)
	if err != nil {
		return nil, err
	}
	reactions, err := marshalOptional(m.Reactions, len(m.Reactions) == 0)
	if err != nil {
		return nil, err
	}
	keyboard, err := marshalOptional(m.Keyboard, m.Keyboard == nil)
	if err != nil {
		return nil, err
	}
	pending, err := marshalOptional(m.PendingUploads,
		len(m.PendingUploads) == 0)
	if err != nil {
		return nil, err
	}

	return &Message{
		ConversationId: m.ConversationID,
		LocalId:        m.LocalID,
		RemoteId:       m.RemoteID,
		RandomId:       m.RandomID,
		Status:         uint8(m.Status),
		Text:           []byte(m.Text),
		SenderId:       m.SenderID,
		Out:            m.Out,
		Timestamp:      m.Timestamp,
		Important:      m.Important,
		Pinned:         m.Pinned,
		Deleted:        m.Deleted,
		DeletedForAll:  m.DeletedForAll,
		Encrypted:      m.Encrypted,
		MyReaction:     m.MyReaction,
		Attachments:    attachments,
		Forwards:       forwards,
		Reactions:      reactions,
		Keyboard:       keyboard,
		Action:         uint8(m.Action),
		ActionText:     m.ActionText,
		PendingUploads: pending,
	}, nil
}

// toMessage converts a row back into a message.Message.
func (row *Message) toMessage() (message.Message, error) {
	m := message.Message{
		ConversationID: row.ConversationId,
		LocalID:        row.LocalId,
		RemoteID:       row.RemoteId,
		RandomID:       row.RandomId,
		Status:         message.Status(row.Status),
		Text:           string(row.Text),
		SenderID:       row.SenderId,
		Out:            row.Out,
		Timestamp:      row.Timestamp,
		Important:      row.Important,
		Pinned:         row.Pinned,
		Deleted:        row.Deleted,
		DeletedForAll:  row.DeletedForAll,
		Encrypted:      row.Encrypted,
		MyReaction:     row.MyReaction,
		Action:         message.Action(row.Action),
		ActionText:     row.ActionText,
	}
	if err := unmarshalOptional(row.Attachments, &m.Attachments); err != nil {
		return m, err
	}
	if err := unmarshalOptional(row.Forwards, &m.Forwards); err != nil {
		return m, err
	}
	if err := unmarshalOptional(row.Reactions, &m.Reactions); err != nil {
		return m, err
	}
	if err := unmarshalOptional(row.Keyboard, &m.Keyboard); err != nil {
		return m, err
	}
	if err := unmarshalOptional(row.PendingUploads, &m.PendingUploads); err != nil {
		return m, err
	}
	return m, nil
}

// ensureConversation creates an empty conversation row so message rows can
// reference it.
func ensureConversation(tx *gorm.DB, conversationID int64) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).Create(&Conversation{Id: conversationID}).Error
}

// UpsertMessages inserts or replaces the messages in one transaction.
func (i *impl) UpsertMessages(msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	jww.TRACE.Printf("[ChatSync SQL] UpsertMessages(%d)", len(msgs))

	rows := make([]*Message, len(msgs))
	seen := make(map[int64]bool)
	for j := range msgs {
		row, err := buildMessage(msgs[j])
		if err != nil {
			return errors.WithMessagef(err, "failed to build row for %s",
				msgs[j].String())
		}
		rows[j] = row
		seen[row.ConversationId] = true
	}

	ctx, cancel := newContext()
	defer cancel()
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for conversationID := range seen {
			if err := ensureConversation(tx, conversationID); err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&rows).Error
	})
}

// DeleteMessages removes the rows in one statement.
func (i *impl) DeleteMessages(conversationID int64, localIDs []int64) error {
	if len(localIDs) == 0 {
		return nil
	}
	jww.TRACE.Printf("[ChatSync SQL] DeleteMessages(%d, %v)",
		conversationID, localIDs)

	ctx, cancel := newContext()
	defer cancel()
	return i.db.WithContext(ctx).
		Where("conversation_id = ? AND local_id IN ?", conversationID, localIDs).
		Delete(&Message{}).Error
}

// RekeyMessage moves a row to a new local ID, dropping any row that already
// uses it.
func (i *impl) RekeyMessage(conversationID, oldLocalID, newLocalID int64) error {
	jww.TRACE.Printf("[ChatSync SQL] RekeyMessage(%d, %d -> %d)",
		conversationID, oldLocalID, newLocalID)

	ctx, cancel := newContext()
	defer cancel()
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("conversation_id = ? AND local_id = ?",
			conversationID, newLocalID).Delete(&Message{}).Error
		if err != nil {
			return err
		}
		return tx.Model(&Message{}).
			Where("conversation_id = ? AND local_id = ?",
				conversationID, oldLocalID).
			Update("local_id", newLocalID).Error
	})
}

// LoadMessages returns every message of the conversation ordered by local ID.
func (i *impl) LoadMessages(conversationID int64) ([]message.Message, error) {
	jww.TRACE.Printf("[ChatSync SQL] LoadMessages(%d)", conversationID)

	var rows []Message
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("local_id").Find(&rows).Error
	cancel()
	if err != nil {
		return nil, err
	}

	msgs := make([]message.Message, 0, len(rows))
	for j := range rows {
		m, err := rows[j].toMessage()
		if err != nil {
			jww.ERROR.Printf("[ChatSync SQL] Skipping corrupt message "+
				"%d/%d: %+v", conversationID, rows[j].LocalId, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SaveConversation upserts the conversation aggregate.
func (i *impl) SaveConversation(c message.Conversation) error {
	jww.TRACE.Printf("[ChatSync SQL] SaveConversation(%d)", c.Peer.ID)

	keyboard, err := marshalOptional(c.Keyboard, c.Keyboard == nil)
	if err != nil {
		return err
	}
	row := &Conversation{
		Id:               c.Peer.ID,
		Kind:             uint8(c.Peer.Kind),
		Title:            c.Title,
		LastReadIncoming: c.LastReadIncoming,
		LastReadOutgoing: c.LastReadOutgoing,
		UnreadCount:      int64(c.UnreadCount),
		PinnedMessageId:  c.PinnedMessageID,
		Acl:              c.ACL.Flags(),
		Keyboard:         keyboard,
	}

	ctx, cancel := newContext()
	defer cancel()
	return i.db.WithContext(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

// LoadConversation returns the stored aggregate, if any.
func (i *impl) LoadConversation(
	conversationID int64) (message.Conversation, bool, error) {
	jww.TRACE.Printf("[ChatSync SQL] LoadConversation(%d)", conversationID)

	var rows []Conversation
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Where("id = ?", conversationID).
		Limit(1).Find(&rows).Error
	cancel()
	if err != nil {
		return message.Conversation{}, false, err
	} else if len(rows) == 0 {
		return message.Conversation{}, false, nil
	}

	row := rows[0]
	c := message.Conversation{
		Peer: message.Peer{
			ID:   row.Id,
			Kind: message.PeerKind(row.Kind),
		},
		Title:            row.Title,
		LastReadIncoming: row.LastReadIncoming,
		LastReadOutgoing: row.LastReadOutgoing,
		UnreadCount:      int(row.UnreadCount),
		PinnedMessageID:  row.PinnedMessageId,
		ACL:              message.ACLFromFlags(row.Acl),
	}
	if err = unmarshalOptional(row.Keyboard, &c.Keyboard); err != nil {
		return c, false, err
	}
	return c, true, nil
}
