////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Multi groups several stoppables so they are closed together.
type Multi struct {
	name       string
	stoppables []Stoppable
	closed     bool
	mux        sync.RWMutex
}

// NewMulti returns an empty Multi.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Name returns the name of the Multi followed by its children.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()
	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}
	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// Add appends stoppables to the group.
func (m *Multi) Add(stoppables ...Stoppable) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.stoppables = append(m.stoppables, stoppables...)
}

// GetStatus returns the least advanced status of all children.
func (m *Multi) GetStatus() Status {
	m.mux.RLock()
	defer m.mux.RUnlock()
	lowest := Stopped
	for _, s := range m.stoppables {
		if st := s.GetStatus(); st < lowest {
			lowest = st
		}
	}
	if !m.closed && lowest == Stopped && len(m.stoppables) == 0 {
		return Running
	}
	return lowest
}

// IsRunning returns true if any child is still running.
func (m *Multi) IsRunning() bool { return m.GetStatus() == Running }

// IsStopping returns true if the group is between Close and fully stopped.
func (m *Multi) IsStopping() bool { return m.GetStatus() == Stopping }

// IsStopped returns true once every child has stopped.
func (m *Multi) IsStopped() bool { return m.GetStatus() == Stopped }

// Close closes every child and returns the combined errors.
func (m *Multi) Close() error {
	m.mux.Lock()
	m.closed = true
	children := append([]Stoppable(nil), m.stoppables...)
	m.mux.Unlock()

	var failed []string
	for _, s := range children {
		if s.IsRunning() {
			if err := s.Close(); err != nil {
				failed = append(failed, err.Error())
			}
		}
	}
	if len(failed) > 0 {
		err := errors.Errorf("MultiStopper %s failed to close %d "+
			"stoppables: %s", m.name, len(failed), strings.Join(failed, "; "))
		jww.ERROR.Print(err)
		return err
	}
	jww.INFO.Printf("Closed %d stoppables in %s", len(children), m.name)
	return nil
}
