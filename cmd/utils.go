////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/upload"
)

// bindFlagHelper binds the key to a pflag.Flag used by Cobra and prints an
// error if one occurs.
func bindFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.Flags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

// bindPersistentFlagHelper binds the key to a persistent pflag.Flag used by
// Cobra and prints an error if one occurs.
func bindPersistentFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.PersistentFlags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

// parsePeer reads the conversation peer from the flags.
func parsePeer() (message.Peer, error) {
	peer := message.Peer{ID: viper.GetInt64(peerFlag)}
	kind := strings.ToLower(viper.GetString(peerKindFlag))
	for k := message.User; k <= message.Channel; k++ {
		if k.String() == kind {
			peer.Kind = k
			return peer, nil
		}
	}
	return peer, errors.Errorf("unknown peer kind %q", kind)
}

// methodFor picks the upload method from the file extension.
func methodFor(path string) upload.Method {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return upload.Photo
	case ".mp4", ".mov", ".webm":
		return upload.Video
	case ".mp3", ".ogg", ".m4a", ".wav":
		return upload.Audio
	default:
		return upload.Document
	}
}

func printSnapshot(s conversation.Snapshot) {
	conv := s.Conversation
	fmt.Printf("Conversation %d (%s) %q: %d messages, %d unread, "+
		"read up to %d, pinned %d\n", conv.Peer.ID, conv.Peer.Kind,
		conv.Title, len(s.Messages), conv.UnreadCount, conv.LastReadIncoming,
		conv.PinnedMessageID)
	if s.Encryption.Enabled {
		fmt.Printf("Encryption: %s keys\n", s.Encryption.Policy)
	}

	for i := range s.Messages {
		m := s.Messages[i]
		direction := "<"
		if m.Out {
			direction = ">"
		}
		var flags []string
		if m.Deleted {
			flags = append(flags, "deleted")
		}
		if m.Pinned {
			flags = append(flags, "pinned")
		}
		if m.Important {
			flags = append(flags, "important")
		}
		if m.Encrypted {
			flags = append(flags, "encrypted")
		}
		fmt.Printf("%s %-8d %-10s %q attachments:%d reactions:%v %s\n",
			direction, m.LocalID, m.Status, m.Text, len(m.Attachments),
			m.Reactions, strings.Join(flags, ","))
	}

	if s.Draft.Text != "" || s.Draft.AttachmentCount() > 0 {
		fmt.Printf("Draft: %q with %d attachments\n", s.Draft.Text,
			s.Draft.AttachmentCount())
	}
	for _, u := range s.Uploads {
		fmt.Printf("Upload %s %s %s %d%%\n", u.ID, u.Path, u.Status,
			u.Progress)
	}
}
