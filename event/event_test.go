////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/stoppable"
)

func TestManager_Report(t *testing.T) {
	var mux sync.Mutex
	var evts []reportableEvent
	cb := func(priority int, cat, ty, det string) {
		mux.Lock()
		defer mux.Unlock()
		evts = append(evts, reportableEvent{priority, cat, ty, det})
	}
	count := func() int {
		mux.Lock()
		defer mux.Unlock()
		return len(evts)
	}

	m := NewManager(0)
	stop := m.Start()
	require.NoError(t, m.RegisterEventCallback("test", cb))
	require.Error(t, m.RegisterEventCallback("test", cb))

	m.Report(PriorityWarning, CategoryStore, "PersistFailed", "disk full")
	m.Report(PriorityNotice, CategorySend, "SendFailed", "message 7")
	m.Report(PriorityError, CategoryEncryption, "ExchangeFailed", "peer 9")

	require.Eventually(t, func() bool { return count() == 3 },
		time.Second, 5*time.Millisecond)

	mux.Lock()
	if evts[0].Category != CategoryStore {
		t.Errorf("Expected category %s, got: %s", CategoryStore, evts[0])
	}
	if evts[1].EventType != "SendFailed" {
		t.Errorf("Expected type SendFailed, got: %s", evts[1])
	}
	if evts[2].Priority != PriorityError {
		t.Errorf("Expected priority %d, got: %s", PriorityError, evts[2])
	}
	mux.Unlock()

	m.UnregisterEventCallback("test")
	m.Report(PriorityNotice, CategorySend, "SendFailed", "message 8")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 3, count())

	require.NoError(t, stop.Close())
	require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
}

// Report never blocks when the queue is full.
func TestManager_Report_Full(t *testing.T) {
	m := NewManager(1)
	m.Report(PriorityWarning, CategoryStore, "a", "")
	done := make(chan struct{})
	go func() {
		m.Report(PriorityWarning, CategoryStore, "b", "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on a full queue")
	}
}
