////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package message holds the conversation data model shared by every engine
// component: messages and their delivery state machine, attachments,
// reactions and the per-peer conversation aggregate.
package message

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// LocalIDBase is the first local ID handed out to messages authored on this
// client. Server messages use their remote ID as local ID and stay below it.
const LocalIDBase int64 = 1 << 48

// IsClientLocalID returns true if the ID was allocated by the client rather
// than taken from the server.
func IsClientLocalID(id int64) bool {
	return id >= LocalIDBase
}

// Action is a service action carried by a message.
type Action uint8

const (
	ActionNone Action = iota
	ActionTitleUpdate
	ActionPin
	ActionUnpin
)

// Button is one bot keyboard button.
type Button struct {
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
}

// Keyboard is a bot keyboard attached to a message or a conversation.
type Keyboard struct {
	Inline  bool       `json:"inline"`
	OneTime bool       `json:"oneTime"`
	Buttons [][]Button `json:"buttons"`
}

// HasButtons returns true if any row contains a button.
func (k *Keyboard) HasButtons() bool {
	if k == nil {
		return false
	}
	for _, row := range k.Buttons {
		if len(row) > 0 {
			return true
		}
	}
	return false
}

// Message is one entry of a conversation, identified by ConversationID and
// LocalID.
type Message struct {
	ConversationID int64
	LocalID        int64

	// RemoteID is zero until the server acknowledges the message.
	RemoteID int64

	Status      Status
	Text        string
	Attachments []Attachment
	Forwards    []int64
	SenderID    int64
	Out         bool
	Timestamp   time.Time

	// RandomID correlates a locally authored message with its server echo.
	RandomID int64

	Reactions  []Reaction
	MyReaction int64

	Important     bool
	Pinned        bool
	Deleted       bool
	DeletedForAll bool
	Encrypted     bool

	Keyboard   *Keyboard
	Action     Action
	ActionText string

	// PendingUploads lists the uploads an unsent message still waits for.
	// Their attachments are appended as they finish.
	PendingUploads []string
}

// String returns a short description of the message for logs.
func (m *Message) String() string {
	return fmt.Sprintf("Message{conversation:%d local:%d remote:%d "+
		"random:%d status:%s}", m.ConversationID, m.LocalID, m.RemoteID,
		m.RandomID, m.Status)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		atts := make([]Attachment, len(m.Attachments))
		for i := range m.Attachments {
			atts[i] = m.Attachments[i].clone()
		}
		m.Attachments = atts
	}
	if m.Forwards != nil {
		m.Forwards = append([]int64(nil), m.Forwards...)
	}
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.PendingUploads != nil {
		m.PendingUploads = append([]string(nil), m.PendingUploads...)
	}
	if m.Keyboard != nil {
		kb := *m.Keyboard
		kb.Buttons = make([][]Button, len(m.Keyboard.Buttons))
		for i, row := range m.Keyboard.Buttons {
			kb.Buttons[i] = append([]Button(nil), row...)
		}
		m.Keyboard = &kb
	}
	return m
}

// Less orders messages by status rank and then by ascending local ID. Every
// unsent status sorts before Sent.
func Less(a, b *Message) bool {
	pa, pb := a.Status.priority(), b.Status.priority()
	if pa != pb {
		return pa < pb
	}
	return a.LocalID < b.LocalID
}

// NewRandomID returns a non-zero positive random ID.
func NewRandomID() int64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			jww.FATAL.Panicf("Failed to generate random ID: %+v", err)
		}
		id := int64(binary.BigEndian.Uint64(b[:]) >> 1)
		if id != 0 {
			return id
		}
	}
}
