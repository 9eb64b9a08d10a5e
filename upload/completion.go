////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/message"
)

// Completion is the result of a finished upload to a message. It is kept
// until the conversation that owns the message acknowledges it, so results
// that finish while nobody observes the conversation are not lost.
type Completion struct {
	Upload     Upload
	Attachment message.Attachment
}

// Completed returns the kept result of the upload.
func (c *Coordinator) Completed(id ID) (Completion, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	for _, done := range c.completed {
		if done.Upload.ID == id {
			return *done, true
		}
	}
	return Completion{}, false
}

// Completions returns every kept result for messages of the conversation
// with the peer, in completion order.
func (c *Coordinator) Completions(accountID, peerID int64) []Completion {
	c.mux.Lock()
	defer c.mux.Unlock()
	var list []Completion
	for _, done := range c.completed {
		d := done.Upload.Destination
		if done.Upload.AccountID == accountID && d.Kind == ToMessage &&
			d.PeerID == peerID {
			list = append(list, *done)
		}
	}
	return list
}

// Acknowledge drops the kept results of the uploads. Unknown IDs are
// ignored.
func (c *Coordinator) Acknowledge(ids ...ID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[ID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	kept := c.completed[:0]
	for _, done := range c.completed {
		if !drop[done.Upload.ID] {
			kept = append(kept, done)
		}
	}
	if len(kept) == len(c.completed) {
		return
	}
	for i := len(kept); i < len(c.completed); i++ {
		c.completed[i] = nil
	}
	c.completed = kept
	c.saveCompleted()
}

// keep records the result of a finished message upload. Must be called with
// the lock held.
func (c *Coordinator) keep(u Upload, a message.Attachment) {
	if u.Destination.Kind != ToMessage {
		return
	}
	c.completed = append(c.completed, &Completion{Upload: u, Attachment: a})
	c.saveCompleted()
	jww.TRACE.Printf("[Upload] Keeping result of %s for %d until "+
		"acknowledged", u.ID, u.Destination.ID)
}
