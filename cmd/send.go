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
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/message"
)

// sendCmd composes a message in the draft and sends it through the loopback
// server.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message with optional attachments",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine()
		defer e.close()
		e.net.setOffline(viper.GetBool(failFlag))

		c, err := e.open()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer func() {
			if err := c.Close(); err != nil {
				jww.ERROR.Printf("Failed to close conversation: %+v", err)
			}
		}()

		ctx := context.Background()
		if err = c.SetText(ctx, viper.GetString(messageFlag)); err != nil {
			jww.FATAL.Panicf("Failed to set text: %+v", err)
		}

		var files []conversation.FileIntent
		for _, path := range viper.GetStringSlice(attachFlag) {
			intent := conversation.FileIntent{Path: path,
				Method: methodFor(path)}
			if info, err := os.Stat(path); err == nil {
				intent.Size = info.Size()
			}
			files = append(files, intent)
		}
		if len(files) > 0 {
			if _, err = c.AttachFiles(ctx, files...); err != nil {
				jww.FATAL.Panicf("Failed to attach files: %+v", err)
			}
		}

		localID, err := c.Send(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to send: %+v", err)
		}
		jww.INFO.Printf("Sending message %d", localID)

		snap := waitForQueue(c, viper.GetDuration(waitTimeoutFlag))
		printSnapshot(snap)
	},
}

// waitForQueue waits until no message is queued or in flight, or until the
// timeout, and returns the last snapshot.
func waitForQueue(c *conversation.Controller,
	timeout time.Duration) conversation.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sub := c.Subscribe()
	defer c.Unsubscribe(sub)

	for {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to read conversation: %+v", err)
		}
		busy := 0
		for _, m := range snap.Messages {
			switch m.Status {
			case message.Queue, message.Sending, message.WaitingForUpload:
				busy++
			}
		}
		if busy == 0 {
			return snap
		}

		select {
		case <-sub.C:
		case <-ctx.Done():
			jww.WARN.Printf("Gave up waiting for %d messages", busy)
			return snap
		}
	}
}

func init() {
	sendCmd.Flags().StringP(messageFlag, "m", "",
		"Message text to send")
	bindFlagHelper(messageFlag, sendCmd)

	sendCmd.Flags().StringSlice(attachFlag, nil,
		"Files to attach, may be repeated")
	bindFlagHelper(attachFlag, sendCmd)

	sendCmd.Flags().Bool(failFlag, false,
		"Run with the loopback server offline so the send fails")
	bindFlagHelper(failFlag, sendCmd)

	sendCmd.Flags().Duration(waitTimeoutFlag, 15*time.Second,
		"How long to wait for the queue to drain")
	bindFlagHelper(waitTimeoutFlag, sendCmd)

	rootCmd.AddCommand(sendCmd)
}
