////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Storage flags
	sessionFlag  = "session"
	passwordFlag = "password"
	dbFlag       = "db"

	// Engine flags
	paramsFlag = "params"
	ownerFlag  = "owner"

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Misc
	profileCpuFlag  = "profile-cpu"
	metricsAddrFlag = "metricsAddr"

	///////////////// Conversation flags (shared by subcommands) //////////////
	peerFlag     = "peer"
	peerKindFlag = "kind"

	///////////////// Send subcommand flags ///////////////////////////////////
	messageFlag     = "message"
	attachFlag      = "attach"
	failFlag        = "fail"
	waitTimeoutFlag = "waitTimeout"

	///////////////// Replay subcommand flags /////////////////////////////////
	eventsFlag = "events"

	///////////////// Encryption subcommand flags /////////////////////////////
	acceptFlag   = "accept"
	exchangeFlag = "exchange"
	enableFlag   = "enable"
	disableFlag  = "disable"
	ramFlag      = "ram"
)
