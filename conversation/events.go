////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"gitlab.com/elixxir/chatsync/reconciler"
)

// HandleEvents queues a batch of server push events. Batches are applied in
// the order they are handed in and subscribers are notified once per batch.
func (c *Controller) HandleEvents(batch []reconciler.Event) error {
	if !c.post(func() { c.handleEvents(batch) }) {
		return ErrClosed
	}
	return nil
}

func (c *Controller) handleEvents(batch []reconciler.Event) {
	res := c.apply(batch)
	c.services.Metrics.applied(len(batch))

	if !c.params.AutoRead || c.params.ReadOnly || len(res.Incoming) == 0 {
		return
	}
	var latest int64
	for _, id := range res.Incoming {
		if m, ok := c.store.Find(id); ok && m.RemoteID > latest {
			latest = m.RemoteID
		}
	}
	if latest > c.store.Conversation().LastReadIncoming {
		c.markRead(latest)
	}
}

// apply runs the batch through the reconciler and records what to notify.
func (c *Controller) apply(batch []reconciler.Event) reconciler.Result {
	if len(batch) == 0 {
		return reconciler.Result{}
	}
	res := c.reconciler.Apply(batch)
	if res.Changed {
		c.notify(Notification{
			Messages:     len(res.Upserted) > 0 || len(res.Removed) > 0,
			Conversation: res.Conversation,
		})
	}
	return res
}
