////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/chatsync/conversation"
	"gitlab.com/elixxir/chatsync/encryption"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/keyStore"
	"gitlab.com/elixxir/chatsync/messageStore/storage"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/elixxir/chatsync/upload"
	"gitlab.com/elixxir/ekv"
)

const (
	eventQueueSize = 100
	stopTimeout    = 5 * time.Second
)

// engine holds the services shared by the conversations the CLI opens.
type engine struct {
	services conversation.Services
	params   conversation.Params
	net      *loopbackNetwork
	keys     *keyStore.Store
	stop     *stoppable.Multi
}

// openEngine builds the services from the root flags. It panics on failure,
// like the rest of the CLI.
func openEngine() *engine {
	var store ekv.KeyValue = ekv.MakeMemstore()
	if dir := viper.GetString(sessionFlag); dir != "" {
		fs, err := ekv.NewFilestore(dir, viper.GetString(passwordFlag))
		if err != nil {
			jww.FATAL.Panicf("Failed to open session %s: %+v", dir, err)
		}
		store = fs
	}
	kv := versioned.NewKV(store)

	backend, err := storage.NewBackend(viper.GetString(dbFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to open message database: %+v", err)
	}

	params, err := conversation.GetParameters(viper.GetString(paramsFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to parse params: %+v", err)
	}
	params.OwnerID = viper.GetInt64(ownerFlag)
	params.AccountID = params.OwnerID

	events := event.NewManager(eventQueueSize)
	err = events.RegisterEventCallback("cli",
		func(priority int, category, evtType, details string) {
			jww.INFO.Printf("Event(%d, %s, %s): %s", priority, category,
				evtType, details)
		})
	if err != nil {
		jww.FATAL.Panicf("Failed to register event callback: %+v", err)
	}

	uploads, err := upload.NewCoordinator(kv, &loopbackTransport{},
		upload.GetDefaultParams())
	if err != nil {
		jww.FATAL.Panicf("Failed to load uploads: %+v", err)
	}

	keys := keyStore.New(kv, &keyStore.Loopback{})
	negotiator, err := encryption.NewNegotiator(params.OwnerID, kv, keys,
		events)
	if err != nil {
		jww.FATAL.Panicf("Failed to load encryption state: %+v", err)
	}

	var metrics *conversation.Metrics
	if metricsRegistry != nil {
		if metrics, err = conversation.NewMetrics(metricsRegistry); err != nil {
			jww.FATAL.Panicf("Failed to register metrics: %+v", err)
		}
	}

	stop := stoppable.NewMulti("chatsync")
	stop.Add(events.Start(), uploads.Start())

	net := &loopbackNetwork{}
	return &engine{
		services: conversation.Services{
			KV:         kv,
			Backend:    backend,
			Network:    net,
			Uploads:    uploads,
			Encryption: negotiator,
			Reporter:   events,
			Metrics:    metrics,
		},
		params: params,
		net:    net,
		keys:   keys,
		stop:   stop,
	}
}

// open opens the conversation named by the peer flags. The loopback remote
// IDs continue past the stored messages.
func (e *engine) open() (*conversation.Controller, error) {
	peer, err := parsePeer()
	if err != nil {
		return nil, err
	}
	stored, err := e.services.Backend.LoadMessages(peer.ID)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load %d", peer.ID)
	}
	e.net.observe(stored)

	c, err := conversation.Open(peer, e.services, e.params)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open %d", peer.ID)
	}
	return c, nil
}

func (e *engine) close() {
	e.services.Encryption.Close()
	if err := e.stop.Close(); err != nil {
		jww.ERROR.Printf("Failed to stop engine: %+v", err)
	}
	if err := stoppable.WaitForStopped(e.stop, stopTimeout); err != nil {
		jww.ERROR.Printf("Engine did not stop: %+v", err)
	}
}
