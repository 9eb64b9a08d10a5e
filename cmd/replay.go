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

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/chatsync/reconciler"
)

// replayCmd applies server push events read from a file.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Apply a JSON file of server events to a conversation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := viper.GetString(eventsFlag)
		data, err := os.ReadFile(path)
		if err != nil {
			jww.FATAL.Panicf("Failed to read events from %s: %+v", path, err)
		}
		batch, err := reconciler.DecodeEvents(data)
		if err != nil {
			jww.FATAL.Panicf("Failed to decode events: %+v", err)
		}

		e := openEngine()
		defer e.close()
		c, err := e.open()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer c.Close()

		if err = c.HandleEvents(batch); err != nil {
			jww.FATAL.Panicf("Failed to apply events: %+v", err)
		}
		jww.INFO.Printf("Applied %d events", len(batch))

		// Snapshots are served after every batch handed in before them
		snap, err := c.Snapshot(context.Background())
		if err != nil {
			jww.FATAL.Panicf("Failed to read conversation: %+v", err)
		}
		printSnapshot(snap)
	},
}

func init() {
	replayCmd.Flags().String(eventsFlag, "events.json",
		"Path to a JSON array of events")
	bindFlagHelper(eventsFlag, replayCmd)

	rootCmd.AddCommand(replayCmd)
}
