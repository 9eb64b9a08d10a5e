////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of environment variables read into viper, so
// CHATSYNC_SESSION sets --session.
const envPrefix = "CHATSYNC"

// cpuProfile is the running CPU profile, if any.
var cpuProfile interface{ Stop() }

// metricsRegistry holds the engine metrics when --metricsAddr is set.
var metricsRegistry *prometheus.Registry

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Drives the conversation synchronization engine against a loopback server",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))

		if dir := viper.GetString(profileCpuFlag); dir != "" {
			cpuProfile = profile.Start(profile.CPUProfile,
				profile.ProfilePath(dir), profile.NoShutdownHook)
		}

		if addr := viper.GetString(metricsAddrFlag); addr != "" {
			metricsRegistry = prometheus.NewRegistry()
			serveMetrics(addr, metricsRegistry)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != nil {
			cpuProfile.Stop()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// serveMetrics exposes the registry on addr at /metrics.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		jww.INFO.Printf("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			jww.ERROR.Printf("Metrics server stopped: %+v", err)
		}
	}()
}

// initConfig loads a .env file if present and reads CHATSYNC_* variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		jww.WARN.Printf("Failed to load .env file: %+v", err)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	bindPersistentFlagHelper(logLevelFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	bindPersistentFlagHelper(logFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "",
		"Sets the initial storage directory for engine state. Empty keeps "+
			"everything in memory")
	bindPersistentFlagHelper(sessionFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password to the session file")
	bindPersistentFlagHelper(passwordFlag, rootCmd)

	rootCmd.PersistentFlags().String(dbFlag, "",
		"Path to the sqlite message database. Empty uses a temporary "+
			"in-memory database")
	bindPersistentFlagHelper(dbFlag, rootCmd)

	rootCmd.PersistentFlags().String(paramsFlag, "",
		"JSON encoded conversation parameters")
	bindPersistentFlagHelper(paramsFlag, rootCmd)

	rootCmd.PersistentFlags().Int64(ownerFlag, 1,
		"ID of the account using the engine")
	bindPersistentFlagHelper(ownerFlag, rootCmd)

	rootCmd.PersistentFlags().String(profileCpuFlag, "",
		"Enable cpu profiling to this directory")
	bindPersistentFlagHelper(profileCpuFlag, rootCmd)

	rootCmd.PersistentFlags().String(metricsAddrFlag, "",
		"Address to serve prometheus metrics on, e.g. :9090")
	bindPersistentFlagHelper(metricsAddrFlag, rootCmd)

	rootCmd.PersistentFlags().Int64(peerFlag, 2,
		"ID of the conversation peer")
	bindPersistentFlagHelper(peerFlag, rootCmd)

	rootCmd.PersistentFlags().String(peerKindFlag, "user",
		"Kind of the peer: user, chat, group or channel")
	bindPersistentFlagHelper(peerKindFlag, rootCmd)
}
