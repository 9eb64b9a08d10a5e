////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package draft holds the composed-but-unsent content of a conversation and
// the working copy of a message being edited.
package draft

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage/versioned"
)

// Storage values.
const (
	draftStoreKey     = "draft"
	draftStoreVersion = 0
)

// DefaultDebounce is the text persistence delay used when none is set.
const DefaultDebounce = 500 * time.Millisecond

// Draft is the persisted state of a Session.
type Draft struct {
	// DraftID is the local ID the sent message will take. Zero until the
	// first attachment action.
	DraftID int64   `json:"draftID"`
	Text    string  `json:"text"`
	Entries entries `json:"entries"`
}

// Attachments returns copies of the attachment entries in order.
func (d Draft) Attachments() []message.AttachmentEntry {
	return d.Entries.clone().List
}

// Content returns the resolved attachments and the forwarded message IDs.
// Pending uploads are left out.
func (d Draft) Content() ([]message.Attachment, []int64) {
	return d.Entries.split()
}

// AttachmentCount counts attachments, each message of a forward bundle
// separately.
func (d Draft) AttachmentCount() int {
	return d.Entries.count()
}

// Session is the draft of one conversation. Text changes are written after a
// debounce delay; every other mutation is written immediately.
type Session struct {
	kv       *versioned.KV
	debounce time.Duration

	draft      Draft
	timer      *time.Timer
	generation uint64
	dirty      bool
	mux        sync.Mutex
}

// NewSession returns an empty draft session stored in kv, which should be
// scoped to the conversation.
func NewSession(kv *versioned.KV, debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{kv: kv, debounce: debounce}
}

// Load restores the persisted draft. Returns false if none was stored.
func (s *Session) Load() (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	var d Draft
	if err := s.kv.GetJSON(draftStoreKey, draftStoreVersion, &d); err != nil {
		if !s.kv.Exists(err) {
			return false, nil
		}
		return false, err
	}
	s.draft = d
	jww.DEBUG.Printf("[Draft] Restored draft %d with %d attachments",
		d.DraftID, len(d.Entries.List))
	return true, nil
}

// Snapshot returns a copy of the draft.
func (s *Session) Snapshot() Draft {
	s.mux.Lock()
	defer s.mux.Unlock()
	d := s.draft
	d.Entries = s.draft.Entries.clone()
	return d
}

// DraftID returns the reserved local ID, or zero.
func (s *Session) DraftID() int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.draft.DraftID
}

// EnsureDraftID reserves a local ID for the draft using alloc if none is
// reserved yet and returns it.
func (s *Session) EnsureDraftID(alloc func() int64) int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.draft.DraftID == 0 {
		s.draft.DraftID = alloc()
		s.storeLocked()
	}
	return s.draft.DraftID
}

// SetText replaces the draft text and schedules a debounced write.
func (s *Session) SetText(text string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.draft.Text = text
	s.dirty = true
	s.generation++
	gen := s.generation
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mux.Lock()
		defer s.mux.Unlock()
		if gen == s.generation && s.dirty {
			s.storeLocked()
		}
	})
}

// AppendAttachments appends entries and returns their entry IDs.
func (s *Session) AppendAttachments(added ...message.AttachmentEntry) []int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	ids := s.draft.Entries.add(added)
	s.storeLocked()
	return ids
}

// RemoveAttachment removes the entry and returns it.
func (s *Session) RemoveAttachment(entryID int64) (message.AttachmentEntry, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	entry, ok := s.draft.Entries.remove(entryID)
	if ok {
		s.storeLocked()
	}
	return entry, ok
}

// RemoveUpload removes the pending entry of the upload.
func (s *Session) RemoveUpload(uploadID string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	ok := s.draft.Entries.removeUpload(uploadID)
	if ok {
		s.storeLocked()
	}
	return ok
}

// ResolveUpload replaces the pending entry of the upload with the attachment
// in place, or appends it if there is no pending entry. Returns true if an
// entry was replaced.
func (s *Session) ResolveUpload(uploadID string, a message.Attachment) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	replaced := s.draft.Entries.resolve(uploadID, a)
	s.storeLocked()
	return replaced
}

// AttachmentCount returns the number of attachments, counting every message
// of a forward bundle.
func (s *Session) AttachmentCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.draft.Entries.count()
}

// HasUploads returns true if any entry is still an upload.
func (s *Session) HasUploads() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.draft.Entries.uploadIDs()) > 0
}

// UploadIDs returns the IDs of pending uploads in list order.
func (s *Session) UploadIDs() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.draft.Entries.uploadIDs()
}

// CanSend returns hasText || hasNonUploadAttachment || hasSingleForwardBundle.
func (s *Session) CanSend() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.draft.Entries.canSend(s.draft.Text)
}

// Checkpoint writes any pending text change now.
func (s *Session) Checkpoint() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.dirty {
		s.storeLocked()
	}
}

// Clear empties the draft and deletes it from storage.
func (s *Session) Clear() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.stopTimerLocked()
	s.draft = Draft{}
	s.dirty = false
	err := s.kv.Delete(draftStoreKey, draftStoreVersion)
	if err != nil && s.kv.Exists(err) {
		jww.WARN.Printf("[Draft] Failed to delete draft: %+v", err)
	}
}

// Close stops the debounce timer. Call Checkpoint first to keep pending
// text.
func (s *Session) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.stopTimerLocked()
}

func (s *Session) stopTimerLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// storeLocked writes the draft. Failures are logged; the in-memory draft
// stays authoritative. Must be called with the lock held.
func (s *Session) storeLocked() {
	if err := s.kv.SetJSON(
		draftStoreKey, draftStoreVersion, &s.draft); err != nil {
		jww.WARN.Printf("[Draft] Failed to store draft: %+v", err)
		return
	}
	s.dirty = false
}
