////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

// showCmd prints a conversation.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the messages, draft and uploads of a conversation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine()
		defer e.close()

		c, err := e.open()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer c.Close()

		snap, err := c.Snapshot(context.Background())
		if err != nil {
			jww.FATAL.Panicf("Failed to read conversation: %+v", err)
		}
		printSnapshot(snap)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
