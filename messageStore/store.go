////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package messageStore is the ordered, per-conversation message cache. It is
// the single source of truth while offline and writes through to a Backend on
// a best-effort basis.
package messageStore

import (
	"sort"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/message"
)

// PersistFailureFunc is called every time a write to the Backend fails.
type PersistFailureFunc func(op string, err error)

// Store keeps the messages of one conversation sorted by message.Less.
// NOTE: Store is NOT thread safe. The conversation controller owns it and
// calls it from a single goroutine.
type Store struct {
	conversationID int64
	backend        Backend
	reporter       event.Reporter
	onFailure      PersistFailureFunc

	list         []*message.Message
	byLocalID    map[int64]*message.Message
	conversation message.Conversation
	nextLocalID  int64
}

// New creates an empty Store for the peer. Call Load to warm it from the
// backend. A nil backend keeps everything in memory.
func New(peer message.Peer, backend Backend, reporter event.Reporter,
	onFailure PersistFailureFunc) *Store {
	if reporter == nil {
		reporter = event.LogReporter{}
	}
	return &Store{
		conversationID: peer.ID,
		backend:        backend,
		reporter:       reporter,
		onFailure:      onFailure,
		byLocalID:      make(map[int64]*message.Message),
		conversation:   message.Conversation{Peer: peer},
		nextLocalID:    message.LocalIDBase,
	}
}

// Load replaces the in-memory state with what the backend holds. Load
// failures are reported and leave the store empty.
func (s *Store) Load() {
	s.list = nil
	s.byLocalID = make(map[int64]*message.Message)
	if s.backend == nil {
		return
	}

	msgs, err := s.backend.LoadMessages(s.conversationID)
	if err != nil {
		s.persistFailed("load messages", err)
	}
	for i := range msgs {
		m := msgs[i]
		s.insert(&m)
		s.bumpLocalID(m.LocalID)
	}

	c, exists, err := s.backend.LoadConversation(s.conversationID)
	if err != nil {
		s.persistFailed("load conversation", err)
	} else if exists {
		c.Peer = s.conversation.Peer
		s.conversation = c
	}
	jww.DEBUG.Printf("[MessageStore] Loaded %d messages for conversation %d",
		len(s.list), s.conversationID)
}

// ConversationID returns the ID of the conversation this store serves.
func (s *Store) ConversationID() int64 { return s.conversationID }

// NextLocalID allocates a new client local ID.
func (s *Store) NextLocalID() int64 {
	id := s.nextLocalID
	s.nextLocalID++
	return id
}

// ReserveLocalID makes sure NextLocalID never returns id or anything below
// it. Used for IDs allocated before the store was loaded, such as draft IDs.
func (s *Store) ReserveLocalID(id int64) {
	s.bumpLocalID(id)
}

func (s *Store) bumpLocalID(id int64) {
	if message.IsClientLocalID(id) && id >= s.nextLocalID {
		s.nextLocalID = id + 1
	}
}

// Upsert inserts the message or replaces the entry with the same local ID.
// Any other outgoing entry sharing its random ID is removed first, so at most
// one message per random ID is live. Returns the local IDs removed as
// duplicates.
func (s *Store) Upsert(m message.Message) []int64 {
	m.ConversationID = s.conversationID
	var removed []int64
	if m.RandomID != 0 && m.Out {
		for _, other := range s.list {
			if other.LocalID != m.LocalID && other.Out &&
				other.RandomID == m.RandomID {
				removed = append(removed, other.LocalID)
			}
		}
		for _, id := range removed {
			jww.DEBUG.Printf("[MessageStore] %d replaces %d with random "+
				"ID %d", m.LocalID, id, m.RandomID)
			s.detach(id)
		}
	}

	s.detach(m.LocalID)
	stored := m.Clone()
	s.insert(&stored)
	s.bumpLocalID(m.LocalID)

	if len(removed) > 0 {
		s.deleteRows(removed)
	}
	s.persist(stored)
	return removed
}

// Update applies fn to the stored message, re-sorts and persists it. Returns
// false if the message does not exist. fn must not change the local ID.
func (s *Store) Update(localID int64, fn func(m *message.Message)) bool {
	m, exists := s.byLocalID[localID]
	if !exists {
		return false
	}
	s.detach(localID)
	fn(m)
	m.LocalID = localID
	s.insert(m)
	s.persist(*m)
	return true
}

// Remove deletes the message. Returns false if it did not exist.
func (s *Store) Remove(localID int64) bool {
	if !s.detach(localID) {
		return false
	}
	s.deleteRows([]int64{localID})
	return true
}

// RemoveMany deletes several messages in one backend batch and returns the
// IDs that existed.
func (s *Store) RemoveMany(localIDs []int64) []int64 {
	var removed []int64
	for _, id := range localIDs {
		if s.detach(id) {
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.deleteRows(removed)
	}
	return removed
}

// Rekey moves the message at oldLocalID to newLocalID. An existing entry at
// newLocalID is replaced. Returns false if oldLocalID does not exist.
func (s *Store) Rekey(oldLocalID, newLocalID int64) bool {
	m, exists := s.byLocalID[oldLocalID]
	if !exists {
		return false
	}
	if oldLocalID == newLocalID {
		return true
	}
	s.detach(oldLocalID)
	s.detach(newLocalID)
	m.LocalID = newLocalID
	s.insert(m)

	if s.backend != nil {
		if err := s.backend.RekeyMessage(
			s.conversationID, oldLocalID, newLocalID); err != nil {
			s.persistFailed("rekey message", err)
		}
	}
	s.persist(*m)
	return true
}

// Find returns a copy of the message with the local ID.
func (s *Store) Find(localID int64) (message.Message, bool) {
	m, exists := s.byLocalID[localID]
	if !exists {
		return message.Message{}, false
	}
	return m.Clone(), true
}

// FindByRandomID returns a copy of the outgoing message with the random ID.
func (s *Store) FindByRandomID(randomID int64) (message.Message, bool) {
	if randomID == 0 {
		return message.Message{}, false
	}
	return s.findFirst(func(m *message.Message) bool {
		return m.Out && m.RandomID == randomID
	})
}

// FindByRemoteID returns a copy of the message with the remote ID.
func (s *Store) FindByRemoteID(remoteID int64) (message.Message, bool) {
	if remoteID == 0 {
		return message.Message{}, false
	}
	return s.findFirst(func(m *message.Message) bool {
		return m.RemoteID == remoteID
	})
}

func (s *Store) findFirst(
	match func(m *message.Message) bool) (message.Message, bool) {
	for _, m := range s.list {
		if match(m) {
			return m.Clone(), true
		}
	}
	return message.Message{}, false
}

// Filter returns copies of the matching messages in store order.
func (s *Store) Filter(match func(m *message.Message) bool) []message.Message {
	var out []message.Message
	for _, m := range s.list {
		if match(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}

// WithStatus returns copies of the messages in any of the statuses ordered by
// local ID.
func (s *Store) WithStatus(statuses ...message.Status) []message.Message {
	out := s.Filter(func(m *message.Message) bool {
		for _, st := range statuses {
			if m.Status == st {
				return true
			}
		}
		return false
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].LocalID < out[j].LocalID
	})
	return out
}

// OrderedSnapshot returns copies of every message in sort order.
func (s *Store) OrderedSnapshot() []message.Message {
	out := make([]message.Message, len(s.list))
	for i, m := range s.list {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int { return len(s.list) }

// Conversation returns a copy of the conversation aggregate.
func (s *Store) Conversation() message.Conversation {
	return s.conversation.Clone()
}

// UpdateConversation mutates and persists the conversation aggregate.
func (s *Store) UpdateConversation(fn func(c *message.Conversation)) {
	fn(&s.conversation)
	if s.backend == nil {
		return
	}
	if err := s.backend.SaveConversation(s.conversation); err != nil {
		s.persistFailed("save conversation", err)
	}
}

// insert places m at its sorted position.
func (s *Store) insert(m *message.Message) {
	i := sort.Search(len(s.list), func(i int) bool {
		return message.Less(m, s.list[i])
	})
	s.list = append(s.list, nil)
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = m
	s.byLocalID[m.LocalID] = m
}

// detach removes the entry from memory only.
func (s *Store) detach(localID int64) bool {
	m, exists := s.byLocalID[localID]
	if !exists {
		return false
	}
	delete(s.byLocalID, localID)
	for i := range s.list {
		if s.list[i] == m {
			s.list = append(s.list[:i], s.list[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) persist(m message.Message) {
	if s.backend == nil || m.Status == message.Editing {
		return
	}
	if err := s.backend.UpsertMessages([]message.Message{m}); err != nil {
		s.persistFailed("upsert message", err)
	}
}

func (s *Store) deleteRows(localIDs []int64) {
	if s.backend == nil {
		return
	}
	if err := s.backend.DeleteMessages(s.conversationID, localIDs); err != nil {
		s.persistFailed("delete messages", err)
	}
}

// persistFailed logs and reports a backend failure. The in-memory state stays
// authoritative.
func (s *Store) persistFailed(op string, err error) {
	jww.WARN.Printf("[MessageStore] Failed to %s for conversation %d: %+v",
		op, s.conversationID, err)
	s.reporter.Report(event.PriorityWarning, event.CategoryStore,
		"PersistFailed", op+": "+err.Error())
	if s.onFailure != nil {
		s.onFailure(op, err)
	}
}
