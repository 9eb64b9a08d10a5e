////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package event surfaces engine events to embedders through registered
// callbacks, delivered from a single reporting goroutine.
package event

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/stoppable"
)

const defaultQueueSize = 1000

// reportableEvent is a queued event waiting for delivery.
type reportableEvent struct {
	Priority  int
	Category  string
	EventType string
	Details   string
}

// String prints the event for logging. This function adheres to the
// fmt.Stringer interface.
func (e reportableEvent) String() string {
	return fmt.Sprintf("Event(%d, %s, %s, %s)", e.Priority, e.Category,
		e.EventType, e.Details)
}

// Manager queues reported events and fans them out to callbacks.
type Manager struct {
	eventCh  chan reportableEvent
	eventCbs sync.Map
}

// NewManager returns a Manager with the given queue size. A size of zero
// selects the default.
func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Manager{eventCh: make(chan reportableEvent, queueSize)}
}

// Report queues an event. If the queue is full the event is dropped and an
// error is logged; Report never blocks.
func (e *Manager) Report(priority int, category, evtType, details string) {
	re := reportableEvent{
		Priority:  priority,
		Category:  category,
		EventType: evtType,
		Details:   details,
	}
	select {
	case e.eventCh <- re:
		jww.TRACE.Printf("Event reported: %s", re)
	default:
		jww.ERROR.Printf("Event queue full, unable to report: %s", re)
	}
}

// RegisterEventCallback adds a callback under a unique name.
func (e *Manager) RegisterEventCallback(name string, cb Callback) error {
	if _, exists := e.eventCbs.LoadOrStore(name, cb); exists {
		return errors.Errorf("Key %s already exists as event callback", name)
	}
	return nil
}

// UnregisterEventCallback removes the named callback.
func (e *Manager) UnregisterEventCallback(name string) {
	e.eventCbs.Delete(name)
}

// Start launches the reporting goroutine.
func (e *Manager) Start() *stoppable.Single {
	stop := stoppable.NewSingle("EventReporting")
	go e.reportEventsHandler(stop)
	return stop
}

// reportEventsHandler delivers events to every registered callback in the
// order they were reported.
func (e *Manager) reportEventsHandler(stop *stoppable.Single) {
	jww.DEBUG.Print("reportEventsHandler routine started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("Stopping reportEventsHandler")
			stop.ToStopped()
			return
		case evt := <-e.eventCh:
			jww.TRACE.Printf("Received event: %s", evt)
			e.eventCbs.Range(func(_, cb interface{}) bool {
				cb.(Callback)(evt.Priority, evt.Category, evt.EventType,
					evt.Details)
				return true
			})
		}
	}
}
