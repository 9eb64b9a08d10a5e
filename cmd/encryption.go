////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/chatsync/encryption"
)

// encryptionCmd drives the encryption negotiator against the loopback key
// exchanger.
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Accept the disclaimer, exchange keys and toggle encryption",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		peer, err := parsePeer()
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		policy := encryption.Persist
		if viper.GetBool(ramFlag) {
			policy = encryption.RAM
		}

		e := openEngine()
		defer e.close()
		negotiator := e.services.Encryption
		if !negotiator.IsSupported(peer) {
			jww.FATAL.Panicf("Encryption is not supported with %d (%s)",
				peer.ID, peer.Kind)
		}

		if viper.GetBool(acceptFlag) {
			if err = negotiator.AcceptDisclaimer(); err != nil {
				jww.FATAL.Panicf("Failed to accept disclaimer: %+v", err)
			}
		}

		if viper.GetBool(exchangeFlag) {
			negotiator.SetExchangeCallback(
				func(peerID int64, policy encryption.KeyPolicy, err error) {
					if err != nil {
						fmt.Printf("Key exchange with %d failed: %v\n",
							peerID, err)
						return
					}
					fmt.Printf("Exchanged %s keys with %d\n", policy, peerID)
				})
			err = negotiator.InitiateExchange(context.Background(), peer,
				policy)
			if err != nil {
				jww.FATAL.Panicf("Failed to start key exchange: %+v", err)
			}
			negotiator.Wait()
		}

		switch {
		case viper.GetBool(enableFlag):
			err = negotiator.Enable(peer, policy)
		case viper.GetBool(disableFlag):
			err = negotiator.Disable(peer.ID)
		}
		if err != nil {
			jww.FATAL.Panicf("Failed to change encryption: %+v", err)
		}

		keys, err := e.keys.Keys(viper.GetInt64(ownerFlag), peer.ID, policy)
		if err != nil {
			jww.FATAL.Panicf("Failed to read keys: %+v", err)
		}
		s := negotiator.Settings(peer.ID)
		fmt.Printf("Disclaimer accepted: %t\nEncryption enabled: %t (%s)\n",
			negotiator.DisclaimerAccepted(), s.Enabled, s.Policy)
		for _, k := range keys {
			fmt.Printf("Key %s created %s\n", k.ID, k.Created)
		}
	},
}

func init() {
	encryptionCmd.Flags().Bool(acceptFlag, false,
		"Accept the encryption disclaimer")
	bindFlagHelper(acceptFlag, encryptionCmd)

	encryptionCmd.Flags().Bool(exchangeFlag, false,
		"Exchange keys with the peer")
	bindFlagHelper(exchangeFlag, encryptionCmd)

	encryptionCmd.Flags().Bool(enableFlag, false,
		"Turn encryption on for the peer")
	bindFlagHelper(enableFlag, encryptionCmd)

	encryptionCmd.Flags().Bool(disableFlag, false,
		"Turn encryption off for the peer")
	bindFlagHelper(disableFlag, encryptionCmd)

	encryptionCmd.Flags().Bool(ramFlag, false,
		"Use keys kept in memory only instead of persisted keys")
	bindFlagHelper(ramFlag, encryptionCmd)

	rootCmd.AddCommand(encryptionCmd)
}
