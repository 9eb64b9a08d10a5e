////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

// Reaction is the aggregate count of one reaction on a message.
type Reaction struct {
	ReactionID int64 `json:"reactionID"`
	Count      int   `json:"count"`
}

// ApplyOwnReaction moves the viewer's own reaction to reactionID, adjusting
// the aggregate by one in each direction. A nil reactionID removes the
// viewer's reaction. Aggregates that reach zero are dropped.
func (m *Message) ApplyOwnReaction(reactionID *int64) {
	old := m.MyReaction
	if reactionID == nil {
		if old != 0 {
			m.decrementReaction(old)
		}
		m.MyReaction = 0
		return
	}

	next := *reactionID
	if next == old {
		return
	}
	if old != 0 {
		m.decrementReaction(old)
	}
	m.incrementReaction(next)
	m.MyReaction = next
}

func (m *Message) incrementReaction(id int64) {
	for i := range m.Reactions {
		if m.Reactions[i].ReactionID == id {
			m.Reactions[i].Count++
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{ReactionID: id, Count: 1})
}

func (m *Message) decrementReaction(id int64) {
	for i := range m.Reactions {
		if m.Reactions[i].ReactionID != id {
			continue
		}
		m.Reactions[i].Count--
		if m.Reactions[i].Count <= 0 {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
		}
		return
	}
}
