////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	allowed := map[[2]Status]bool{
		{Queue, WaitingForUpload}: true,
		{Queue, Sending}:          true,
		{Sending, Sent}:           true,
		{Sending, Error}:          true,
		{Error, Queue}:            true,
		{WaitingForUpload, Queue}: true,
		{WaitingForUpload, Error}: true,
	}
	all := []Status{Queue, WaitingForUpload, Sending, Sent, Error, Editing}
	for _, from := range all {
		for _, to := range all {
			expected := allowed[[2]Status{from, to}]
			if got := from.CanTransitionTo(to); got != expected {
				t.Errorf("%s -> %s: expected %t, got %t",
					from, to, expected, got)
			}
		}
	}
}

// Equal statuses sort by local ID and every unsent status sorts before Sent
// regardless of ID.
func TestLess_Ordering(t *testing.T) {
	msgs := []*Message{
		{LocalID: 5, Status: Sent},
		{LocalID: 900, Status: Queue},
		{LocalID: 1, Status: Sent},
		{LocalID: 700, Status: Sending},
		{LocalID: 800, Status: Error},
		{LocalID: 3, Status: Queue},
		{LocalID: 600, Status: WaitingForUpload},
	}
	sort.Slice(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })

	order := make([]int64, len(msgs))
	for i, m := range msgs {
		order[i] = m.LocalID
	}
	require.Equal(t, []int64{600, 800, 3, 900, 700, 1, 5}, order)

	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		if prev.Status == cur.Status && prev.LocalID > cur.LocalID {
			t.Errorf("Equal status out of order: %s before %s", prev, cur)
		}
		if prev.Status == Sent && cur.Status.IsUnsent() {
			t.Errorf("Unsent %s sorted after sent %s", cur, prev)
		}
	}
}

func TestNewRandomID(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		id := NewRandomID()
		require.Greater(t, id, int64(0))
		require.False(t, seen[id])
		seen[id] = true
	}
	require.True(t, IsClientLocalID(LocalIDBase))
	require.False(t, IsClientLocalID(999))
}
