////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package encryption manages the per-peer symmetric encryption lifecycle:
// checking for session keys, starting key exchanges, and enabling or
// disabling encryption behind a one-time disclaimer.
package encryption

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/event"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage/versioned"
)

// Storage values.
const (
	negotiatorPrefix    = "Encryption"
	disclaimerKey       = "disclaimer"
	disclaimerVersion   = 0
	settingsKeyPrefix   = "settings:"
	settingsVersion     = 0
	exchangeEventType   = "KeyExchange"
	exchangeFailedEvent = "KeyExchangeFailed"
)

// ExchangeCallback is called when a key exchange started by InitiateExchange
// finishes. err is nil on success.
type ExchangeCallback func(peerID int64, policy KeyPolicy, err error)

// Negotiator tracks the encryption settings of every peer of one account. It
// is safe for concurrent use.
type Negotiator struct {
	ownerID  int64
	kv       *versioned.KV
	backend  KeyBackend
	reporter event.Reporter

	disclaimer bool
	settings   map[int64]Settings
	onExchange ExchangeCallback
	exchanges  sync.WaitGroup
	mux        sync.RWMutex

	// Exchanges run on ctx, which lives until Close
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNegotiator loads the disclaimer state and returns a Negotiator for the
// account.
func NewNegotiator(ownerID int64, kv *versioned.KV, backend KeyBackend,
	reporter event.Reporter) (*Negotiator, error) {
	if reporter == nil {
		reporter = event.LogReporter{}
	}
	n := &Negotiator{
		ownerID:  ownerID,
		kv:       kv.Prefix(negotiatorPrefix),
		backend:  backend,
		reporter: reporter,
		settings: make(map[int64]Settings),
	}

	var accepted bool
	err := n.kv.GetJSON(disclaimerKey, disclaimerVersion, &accepted)
	if err != nil && n.kv.Exists(err) {
		return nil, errors.WithMessage(err, "failed to load disclaimer state")
	}
	n.disclaimer = accepted
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n, nil
}

// SetExchangeCallback registers the function told about finished exchanges.
func (n *Negotiator) SetExchangeCallback(cb ExchangeCallback) {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.onExchange = cb
}

// IsSupported returns true only for one-to-one chats with another user.
func (n *Negotiator) IsSupported(peer message.Peer) bool {
	return peer.Kind == message.User && peer.ID != n.ownerID
}

// DisclaimerAccepted returns true once AcceptDisclaimer has been called on
// this install.
func (n *Negotiator) DisclaimerAccepted() bool {
	n.mux.RLock()
	defer n.mux.RUnlock()
	return n.disclaimer
}

// AcceptDisclaimer records that the user accepted the key encryption
// disclaimer.
func (n *Negotiator) AcceptDisclaimer() error {
	n.mux.Lock()
	defer n.mux.Unlock()
	if err := n.kv.SetJSON(disclaimerKey, disclaimerVersion, true); err != nil {
		return errors.WithMessage(err, "failed to store disclaimer state")
	}
	n.disclaimer = true
	return nil
}

// HasKeys returns true if a session key exists for the peer under the
// policy. Backend failures are logged and count as no keys.
func (n *Negotiator) HasKeys(peerID int64, policy KeyPolicy) bool {
	has, err := n.backend.HasKeys(n.ownerID, peerID, policy)
	if err != nil {
		jww.WARN.Printf("[Encryption] Failed to check keys of %d (%s): %+v",
			peerID, policy, err)
		return false
	}
	return has
}

// InitiateExchange starts a key exchange in the background and returns
// immediately. ctx only gates the start; the exchange itself runs until it
// finishes or the Negotiator is closed. Completion is reported through the
// exchange callback and the event reporter.
func (n *Negotiator) InitiateExchange(ctx context.Context, peer message.Peer,
	policy KeyPolicy) error {
	if !n.IsSupported(peer) {
		return ErrNotSupported
	} else if !n.DisclaimerAccepted() {
		return ErrDisclaimerRequired
	}
	if err := ctx.Err(); err != nil {
		return errors.WithMessagef(err, "key exchange with %d not started",
			peer.ID)
	}
	if n.ctx.Err() != nil {
		return errors.WithMessage(ErrClosed, "key exchange not started")
	}

	jww.INFO.Printf("[Encryption] Starting %s key exchange with %d",
		policy, peer.ID)
	n.exchanges.Add(1)
	go func() {
		defer n.exchanges.Done()
		err := n.backend.Exchange(n.ctx, n.ownerID, peer.ID, policy)
		details := "peer " + strconv.FormatInt(peer.ID, 10) + " (" +
			policy.String() + ")"
		if err != nil {
			jww.ERROR.Printf("[Encryption] Key exchange with %d failed: %+v",
				peer.ID, err)
			n.reporter.Report(event.PriorityError, event.CategoryEncryption,
				exchangeFailedEvent, details+": "+err.Error())
		} else {
			n.reporter.Report(event.PriorityNotice, event.CategoryEncryption,
				exchangeEventType, details)
		}

		n.mux.RLock()
		cb := n.onExchange
		n.mux.RUnlock()
		if cb != nil {
			cb(peer.ID, policy, err)
		}
	}()
	return nil
}

// Wait blocks until every exchange started so far has finished.
func (n *Negotiator) Wait() {
	n.exchanges.Wait()
}

// Close aborts running exchanges and waits for them to report. Later calls to
// InitiateExchange fail with ErrClosed.
func (n *Negotiator) Close() {
	n.cancel()
	n.exchanges.Wait()
}

// Enable turns on encryption for the peer. It fails closed with
// ErrKeyPairDoesNotExist, leaving settings unchanged, if no key exists under
// the policy.
func (n *Negotiator) Enable(peer message.Peer, policy KeyPolicy) error {
	if !n.IsSupported(peer) {
		return ErrNotSupported
	} else if !n.DisclaimerAccepted() {
		return ErrDisclaimerRequired
	}
	if !n.HasKeys(peer.ID, policy) {
		return errors.WithMessagef(ErrKeyPairDoesNotExist,
			"cannot enable %s encryption for %d", policy, peer.ID)
	}
	return n.store(peer.ID, Settings{Enabled: true, Policy: policy})
}

// Disable turns off encryption for the peer, keeping its policy.
func (n *Negotiator) Disable(peerID int64) error {
	s := n.Settings(peerID)
	s.Enabled = false
	return n.store(peerID, s)
}

// Settings returns the settings of the peer.
func (n *Negotiator) Settings(peerID int64) Settings {
	n.mux.RLock()
	s, cached := n.settings[peerID]
	n.mux.RUnlock()
	if cached {
		return s
	}

	err := n.kv.GetJSON(makeSettingsKey(peerID), settingsVersion, &s)
	if err != nil && n.kv.Exists(err) {
		jww.WARN.Printf("[Encryption] Failed to load settings of %d: %+v",
			peerID, err)
	}

	n.mux.Lock()
	n.settings[peerID] = s
	n.mux.Unlock()
	return s
}

// IsEnabled returns true if encryption is on for the peer.
func (n *Negotiator) IsEnabled(peerID int64) bool {
	return n.Settings(peerID).Enabled
}

// Seal encrypts the body for the peer with the newest key of its policy.
func (n *Negotiator) Seal(peerID int64, plaintext []byte) ([]byte, error) {
	s := n.Settings(peerID)
	sealed, err := n.backend.Seal(n.ownerID, peerID, s.Policy, plaintext)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to encrypt for %d", peerID)
	}
	return sealed, nil
}

func (n *Negotiator) store(peerID int64, s Settings) error {
	n.mux.Lock()
	defer n.mux.Unlock()
	if err := n.kv.SetJSON(makeSettingsKey(peerID), settingsVersion, s); err != nil {
		return errors.WithMessagef(err, "failed to store settings of %d", peerID)
	}
	n.settings[peerID] = s
	jww.INFO.Printf("[Encryption] Peer %d: enabled=%t policy=%s",
		peerID, s.Enabled, s.Policy)
	return nil
}

func makeSettingsKey(peerID int64) string {
	return settingsKeyPrefix + strconv.FormatInt(peerID, 10)
}
