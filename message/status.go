////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package message

import "strconv"

// Status is the delivery state of a Message.
type Status uint8

const (
	// Queue is a message accepted locally and waiting to be dispatched.
	Queue Status = iota

	// WaitingForUpload is a message blocked on its attachment uploads.
	WaitingForUpload

	// Sending is a message handed to the network.
	Sending

	// Sent is a message acknowledged by the server with a remote ID.
	Sent

	// Error is a message whose dispatch failed. It can be retried.
	Error

	// Editing marks the working copy of an open edit session. It is never
	// persisted.
	Editing
)

// String prints a human-readable form of the Status for logging and
// debugging. This function adheres to the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Queue:
		return "queue"
	case WaitingForUpload:
		return "waiting for upload"
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Error:
		return "error"
	case Editing:
		return "editing"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}

// priority is the sort rank of the status. Lower ranks sort first.
func (s Status) priority() int {
	switch s {
	case Editing:
		return 0
	case WaitingForUpload:
		return 1
	case Error:
		return 2
	case Queue:
		return 3
	case Sending:
		return 4
	default:
		return 5
	}
}

// IsUnsent returns true for every status of a message that has not been
// acknowledged by the server.
func (s Status) IsUnsent() bool {
	switch s {
	case Queue, WaitingForUpload, Sending, Error:
		return true
	default:
		return false
	}
}

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	Queue:            {WaitingForUpload, Sending},
	WaitingForUpload: {Queue, Error},
	Sending:          {Sent, Error},
	Error:            {Queue},
}

// CanTransitionTo reports whether a message may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
