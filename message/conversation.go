////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

import "strconv"

// PeerKind is the type of chat target.
type PeerKind uint8

const (
	User PeerKind = iota
	Chat
	Group
	Channel
)

// String returns the name of the peer kind.
func (k PeerKind) String() string {
	switch k {
	case User:
		return "user"
	case Chat:
		return "chat"
	case Group:
		return "group"
	case Channel:
		return "channel"
	default:
		return "INVALID PEER KIND: " + strconv.Itoa(int(k))
	}
}

// Peer identifies a conversation target.
type Peer struct {
	ID   int64
	Kind PeerKind
}

// ACL lists what the viewer may change in a conversation.
type ACL struct {
	CanPin         bool
	CanChangeTitle bool
	CanChangeInfo  bool
	CanInvite      bool
	IsAdmin        bool
}

// ACL flag bits used when an ACL is stored as a single integer.
const (
	aclCanPin uint32 = 1 << iota
	aclCanChangeTitle
	aclCanChangeInfo
	aclCanInvite
	aclIsAdmin
)

// Flags packs the ACL into bit flags.
func (a ACL) Flags() uint32 {
	var f uint32
	set := func(b bool, bit uint32) {
		if b {
			f |= bit
		}
	}
	set(a.CanPin, aclCanPin)
	set(a.CanChangeTitle, aclCanChangeTitle)
	set(a.CanChangeInfo, aclCanChangeInfo)
	set(a.CanInvite, aclCanInvite)
	set(a.IsAdmin, aclIsAdmin)
	return f
}

// ACLFromFlags unpacks bit flags produced by ACL.Flags.
func ACLFromFlags(f uint32) ACL {
	return ACL{
		CanPin:         f&aclCanPin != 0,
		CanChangeTitle: f&aclCanChangeTitle != 0,
		CanChangeInfo:  f&aclCanChangeInfo != 0,
		CanInvite:      f&aclCanInvite != 0,
		IsAdmin:        f&aclIsAdmin != 0,
	}
}

// Conversation is the per-peer aggregate of read markers, pin state,
// permissions and the current bot keyboard.
type Conversation struct {
	Peer             Peer
	Title            string
	LastReadIncoming int64
	LastReadOutgoing int64
	UnreadCount      int
	PinnedMessageID  int64
	ACL              ACL
	Keyboard         *Keyboard
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c.Keyboard != nil {
		m := Message{Keyboard: c.Keyboard}
		c.Keyboard = m.Clone().Keyboard
	}
	return c
}
