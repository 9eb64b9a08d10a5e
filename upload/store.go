////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	jww "github.com/spf13/jwalterweatherman"
)

// Storage values.
const (
	storePrefix       = "UploadCoordinator"
	queueStoreKey     = "queue"
	queueStoreVersion = 0

	completedStoreKey     = "completed"
	completedStoreVersion = 0
)

// save writes the queue. Failures are logged; the in-memory queue stays
// authoritative. Must be called with the lock held.
func (c *Coordinator) save() {
	if err := c.kv.SetJSON(queueStoreKey, queueStoreVersion, c.queue); err != nil {
		jww.WARN.Printf("[Upload] Failed to save upload queue: %+v", err)
	}
}

// load reads the saved queue. A missing queue is not an error.
func (c *Coordinator) load() error {
	var queue []*Upload
	err := c.kv.GetJSON(queueStoreKey, queueStoreVersion, &queue)
	if err != nil {
		if !c.kv.Exists(err) {
			return nil
		}
		return err
	}
	for _, u := range queue {
		if u.Status == Uploading || u.Status == Cancelling {
			u.Status = Queued
		}
	}
	c.queue = queue
	jww.INFO.Printf("[Upload] Loaded %d uploads", len(queue))
	return nil
}

// saveCompleted writes the kept results. Must be called with the lock held.
func (c *Coordinator) saveCompleted() {
	err := c.kv.SetJSON(completedStoreKey, completedStoreVersion, c.completed)
	if err != nil {
		jww.WARN.Printf("[Upload] Failed to save upload results: %+v", err)
	}
}

// loadCompleted reads the kept results. A missing list is not an error.
func (c *Coordinator) loadCompleted() error {
	var completed []*Completion
	err := c.kv.GetJSON(completedStoreKey, completedStoreVersion, &completed)
	if err != nil {
		if !c.kv.Exists(err) {
			return nil
		}
		return err
	}
	c.completed = completed
	jww.INFO.Printf("[Upload] Loaded %d unacknowledged results",
		len(completed))
	return nil
}
