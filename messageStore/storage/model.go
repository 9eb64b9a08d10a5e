////////////////////////////////////////////////////////////////////////////////
// Copyright © 2023 Privategrity Corporation                                   /
//                                                                             /
// All rights reserved.                                                        /
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"time"
)

// Message defines the row representation of a single message.
//
// A Message belongs to one Conversation and is keyed by the conversation ID
// and its local ID. Attachments, forwards, reactions and keyboard are stored
// as JSON blobs.
type Message struct {
	ConversationId int64     `gorm:"primaryKey;autoIncrement:false"`
	LocalId        int64     `gorm:"primaryKey;autoIncrement:false"`
	RemoteId       int64     `gorm:"index;not null"`
	RandomId       int64     `gorm:"index;not null"`
	Status         uint8     `gorm:"not null"`
	Text           []byte    `gorm:"not null"`
	SenderId       int64     `gorm:"not null"`
	Out            bool      `gorm:"not null"`
	Timestamp      time.Time `gorm:"index;not null"`
	Important      bool      `gorm:"not null"`
	Pinned         bool      `gorm:"not null"`
	Deleted        bool      `gorm:"not null"`
	DeletedForAll  bool      `gorm:"not null"`
	Encrypted      bool      `gorm:"not null"`
	MyReaction     int64     `gorm:"not null"`
	Attachments    []byte
	Forwards       []byte
	Reactions      []byte
	Keyboard       []byte
	Action         uint8 `gorm:"not null"`
	ActionText     string
	PendingUploads []byte
}

// TableName overrides the table name used by Message.
func (Message) TableName() string {
	return "chat_messages"
}

// Conversation defines the row representation of a conversation aggregate.
// A Conversation has many Message objects.
type Conversation struct {
	Id               int64  `gorm:"primaryKey;autoIncrement:false"`
	Kind             uint8  `gorm:"not null"`
	Title            string `gorm:"not null"`
	LastReadIncoming int64  `gorm:"not null"`
	LastReadOutgoing int64  `gorm:"not null"`
	UnreadCount      int64  `gorm:"not null"`
	PinnedMessageId  int64  `gorm:"not null"`
	Acl              uint32 `gorm:"not null"`
	Keyboard         []byte

	// Have to spell out this relationship because irregular PK name
	Messages []Message `gorm:"foreignKey:ConversationId;references:Id;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name used by Conversation.
func (Conversation) TableName() string {
	return "chat_conversations"
}
