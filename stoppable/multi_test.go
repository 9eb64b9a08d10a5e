////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Closing a Multi closes every child.
func TestMulti_Close(t *testing.T) {
	m := NewMulti("conversation")
	singles := []*Single{NewSingle("a"), NewSingle("b"), NewSingle("c")}
	for _, s := range singles {
		s := s
		m.Add(s)
		go func() {
			<-s.Quit()
			s.ToStopped()
		}()
	}
	require.True(t, m.IsRunning())
	require.Equal(t, "conversation{a, b, c}", m.Name())

	require.NoError(t, m.Close())
	require.NoError(t, WaitForStopped(m, time.Second))
	for _, s := range singles {
		if !s.IsStopped() {
			t.Errorf("%s not stopped: %s", s.Name(), s.GetStatus())
		}
	}
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "running", Running.String())
	require.Equal(t, "stopping", Stopping.String())
	require.Equal(t, "stopped", Stopped.String())
	require.Equal(t, "INVALID STATUS: 7", Status(7).String())
}
