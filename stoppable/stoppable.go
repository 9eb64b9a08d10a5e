////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of long-running goroutines so that
// conversations, upload runners and event reporters can be shut down
// together.
package stoppable

import (
	"time"

	"github.com/pkg/errors"
)

// Error message.
const timeoutErr = "stoppable %q did not stop within %s; status is %s"

// Stoppable is a goroutine handle that can be told to stop.
type Stoppable interface {
	// Close signals the goroutine to stop. It does not wait.
	Close() error

	// Name returns the name used in logs.
	Name() string

	GetStatus() Status
	IsRunning() bool
	IsStopping() bool
	IsStopped() bool
}

// WaitForStopped polls the stoppable until it reports Stopped or the timeout
// elapses.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for !s.IsStopped() {
		select {
		case <-deadline.C:
			return errors.Errorf(timeoutErr, s.Name(), timeout, s.GetStatus())
		case <-tick.C:
		}
	}
	return nil
}
