////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const toStoppingErr = "failed to stop single stoppable %q: status is %s " +
	"instead of %s"

// Single stops one goroutine through a quit channel. The goroutine selects on
// Quit and calls ToStopped once it has finished its cleanup.
type Single struct {
	name   string
	quit   chan struct{}
	done   chan struct{}
	status uint32
	once   sync.Once
}

// NewSingle returns a running Single.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		status: uint32(Running),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string { return s.name }

// GetStatus returns the current status.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// IsRunning returns true until Close is called.
func (s *Single) IsRunning() bool { return s.GetStatus() == Running }

// IsStopping returns true between Close and ToStopped.
func (s *Single) IsStopping() bool { return s.GetStatus() == Stopping }

// IsStopped returns true once the goroutine called ToStopped.
func (s *Single) IsStopped() bool { return s.GetStatus() == Stopped }

// Quit is closed when the goroutine should exit.
func (s *Single) Quit() <-chan struct{} { return s.quit }

// Done is closed once the goroutine reports it has stopped.
func (s *Single) Done() <-chan struct{} { return s.done }

// ToStopped marks the goroutine as finished. Panics if Close was not called
// first.
func (s *Single) ToStopped() {
	if !atomic.CompareAndSwapUint32(
		&s.status, uint32(Stopping), uint32(Stopped)) {
		jww.FATAL.Panicf("Failed to set single stoppable %q to %s when "+
			"status is %s instead of %s", s.name, Stopped, s.GetStatus(),
			Stopping)
	}
	close(s.done)
	jww.DEBUG.Printf("Single stoppable %q stopped", s.name)
}

// Close signals the goroutine to stop. Only the first call has an effect;
// later calls return nil.
func (s *Single) Close() error {
	var err error
	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(
			&s.status, uint32(Running), uint32(Stopping)) {
			err = errors.Errorf(toStoppingErr, s.name, s.GetStatus(), Running)
			jww.ERROR.Print(err)
			return
		}
		jww.TRACE.Printf("Closing quit channel of single stoppable %q",
			s.name)
		close(s.quit)
	})
	return err
}
