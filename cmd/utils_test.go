////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/upload"
)

func TestParsePeer(t *testing.T) {
	defer viper.Reset()
	viper.Set(peerFlag, 42)
	viper.Set(peerKindFlag, "Group")
	peer, err := parsePeer()
	require.NoError(t, err)
	require.Equal(t, message.Peer{ID: 42, Kind: message.Group}, peer)

	viper.Set(peerKindFlag, "robot")
	_, err = parsePeer()
	require.Error(t, err)
}

func TestMethodFor(t *testing.T) {
	tests := map[string]upload.Method{
		"cat.JPG":   upload.Photo,
		"clip.mp4":  upload.Video,
		"voice.ogg": upload.Audio,
		"notes.txt": upload.Document,
		"noext":     upload.Document,
	}
	for path, expected := range tests {
		if m := methodFor(path); m != expected {
			t.Errorf("Wrong method for %s.\nexpected: %s\nreceived: %s",
				path, expected, m)
		}
	}
}

func TestLoopbackNetwork(t *testing.T) {
	n := &loopbackNetwork{}
	n.observe([]message.Message{{RemoteID: 7}, {RemoteID: 3}})
	ctx := context.Background()

	id, err := n.Send(ctx, conversation.SendRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(8), id)

	n.setOffline(true)
	_, err = n.Send(ctx, conversation.SendRequest{})
	require.ErrorIs(t, err, errOffline)
	require.ErrorIs(t, n.Pin(ctx, message.Peer{}, 8), errOffline)
}

func TestLoopbackTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	var progress []int
	tr := &loopbackTransport{}
	a, err := tr.Upload(context.Background(), upload.Upload{Path: path,
		Destination: upload.Destination{Method: upload.Photo}},
		func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	require.Equal(t, message.Photo, a.Type)
	require.Equal(t, "photo.png", a.Name)
	require.Equal(t, []int{50, 100}, progress)

	_, err = tr.Upload(context.Background(), upload.Upload{
		Path: filepath.Join(t.TempDir(), "missing")}, func(int) {})
	require.Error(t, err)
}
