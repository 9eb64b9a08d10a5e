////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package reconciler

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/chatsync/message"
)

// Event is one server push update. The set of kinds is closed; every
// implementation lives in this package.
type Event interface {
	// Kind returns the wire name of the event kind.
	Kind() string
	isEvent()
}

// Event kind names.
const (
	KindStatus    = "status"
	KindDelete    = "delete"
	KindImportant = "important"
	KindReaction  = "reaction"
	KindMessage   = "message"
	KindPeer      = "peer"
)

// StatusUpdate reports a delivery state change of a locally authored
// message.
type StatusUpdate struct {
	LocalID  int64          `json:"localID"`
	Status   message.Status `json:"status"`
	RemoteID *int64         `json:"remoteID,omitempty"`
}

// DeleteUpdate sets or clears the deleted flags of a message.
type DeleteUpdate struct {
	LocalID       int64 `json:"localID"`
	Deleted       bool  `json:"deleted"`
	DeletedForAll bool  `json:"deletedForAll"`
}

// ImportantUpdate sets the important flag of a message.
type ImportantUpdate struct {
	LocalID   int64 `json:"localID"`
	Important bool  `json:"important"`
}

// ReactionUpdate replaces the reaction aggregate of a message.
type ReactionUpdate struct {
	LocalID        int64              `json:"localID"`
	PeerID         int64              `json:"peerID"`
	ReactionID     *int64             `json:"reactionID,omitempty"`
	Reactions      []message.Reaction `json:"reactions"`
	KeepMyReaction bool               `json:"keepMyReaction"`
}

// NewMessage delivers a full message.
type NewMessage struct {
	Message message.Message `json:"message"`
}

// PeerUpdate carries authoritative conversation metadata. Nil fields are
// left unchanged.
type PeerUpdate struct {
	PeerID       int64        `json:"peerID"`
	ReadIncoming *int64       `json:"readIncoming,omitempty"`
	ReadOutgoing *int64       `json:"readOutgoing,omitempty"`
	UnreadCount  *int         `json:"unreadCount,omitempty"`
	Pinned       *int64       `json:"pinned,omitempty"`
	Title        *string      `json:"title,omitempty"`
	ACL          *message.ACL `json:"acl,omitempty"`
}

func (StatusUpdate) Kind() string    { return KindStatus }
func (DeleteUpdate) Kind() string    { return KindDelete }
func (ImportantUpdate) Kind() string { return KindImportant }
func (ReactionUpdate) Kind() string  { return KindReaction }
func (NewMessage) Kind() string      { return KindMessage }
func (PeerUpdate) Kind() string      { return KindPeer }

func (StatusUpdate) isEvent()    {}
func (DeleteUpdate) isEvent()    {}
func (ImportantUpdate) isEvent() {}
func (ReactionUpdate) isEvent()  {}
func (NewMessage) isEvent()      {}
func (PeerUpdate) isEvent()      {}

// envelope is the JSON form of an Event.
type envelope struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// EncodeEvents marshals a batch to a JSON array of typed envelopes.
func EncodeEvents(batch []Event) ([]byte, error) {
	out := make([]envelope, len(batch))
	for i, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s event %d",
				e.Kind(), i)
		}
		out[i] = envelope{Type: e.Kind(), Event: data}
	}
	return json.Marshal(out)
}

// newEvent allocates the decode target of each kind.
var newEvent = map[string]func() Event{
	KindStatus:    func() Event { return &StatusUpdate{} },
	KindDelete:    func() Event { return &DeleteUpdate{} },
	KindImportant: func() Event { return &ImportantUpdate{} },
	KindReaction:  func() Event { return &ReactionUpdate{} },
	KindMessage:   func() Event { return &NewMessage{} },
	KindPeer:      func() Event { return &PeerUpdate{} },
}

// DecodeEvents parses a JSON array produced by EncodeEvents.
func DecodeEvents(data []byte) ([]Event, error) {
	var envs []envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, errors.Wrap(err, "failed to decode event batch")
	}

	batch := make([]Event, 0, len(envs))
	for i, env := range envs {
		alloc, exists := newEvent[env.Type]
		if !exists {
			return nil, errors.Errorf("event %d has unknown type %q",
				i, env.Type)
		}
		e := alloc()
		if err := json.Unmarshal(env.Event, e); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s event %d",
				env.Type, i)
		}
		batch = append(batch, deref(e))
	}
	return batch, nil
}

// deref turns a decoded pointer back into the value form used by Apply.
func deref(e Event) Event {
	switch v := e.(type) {
	case *StatusUpdate:
		return *v
	case *DeleteUpdate:
		return *v
	case *ImportantUpdate:
		return *v
	case *ReactionUpdate:
		return *v
	case *NewMessage:
		return *v
	case *PeerUpdate:
		return *v
	}
	return e
}
