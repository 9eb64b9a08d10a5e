////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package encryption

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

// KeyPolicy selects where session keys are kept.
type KeyPolicy uint8

const (
	// Persist keeps keys in durable storage.
	Persist KeyPolicy = iota

	// RAM keeps keys in memory only; they are lost on restart.
	RAM
)

// String returns the name of the policy.
func (p KeyPolicy) String() string {
	switch p {
	case Persist:
		return "persist"
	case RAM:
		return "ram"
	default:
		return "INVALID KEY POLICY: " + strconv.Itoa(int(p))
	}
}

// Settings is the encryption state of one peer.
type Settings struct {
	Enabled bool      `json:"enabled"`
	Policy  KeyPolicy `json:"policy"`
}

var (
	// ErrKeyPairDoesNotExist is returned when encryption is enabled or used
	// without a session key for the peer. Run a key exchange first.
	ErrKeyPairDoesNotExist = errors.New("key pair does not exist")

	// ErrDisclaimerRequired is returned by Enable and InitiateExchange until
	// the disclaimer has been accepted.
	ErrDisclaimerRequired = errors.New("encryption disclaimer not accepted")

	// ErrNotSupported is returned for peers that cannot use encryption.
	ErrNotSupported = errors.New("encryption is not supported for this peer")

	// ErrClosed is returned by InitiateExchange after Close.
	ErrClosed = errors.New("negotiator is closed")
)

// KeyBackend stores session key material keyed by (owner, peer, policy). The
// Negotiator never handles raw key bytes.
type KeyBackend interface {
	// HasKeys returns true if at least one session key exists.
	HasKeys(ownerID, peerID int64, policy KeyPolicy) (bool, error)

	// Exchange establishes a new session key with the peer. It blocks until
	// the exchange finishes or ctx is cancelled.
	Exchange(ctx context.Context, ownerID, peerID int64, policy KeyPolicy) error

	// Seal encrypts plaintext with the newest session key. Returns
	// ErrKeyPairDoesNotExist if there is none.
	Seal(ownerID, peerID int64, policy KeyPolicy, plaintext []byte) ([]byte, error)
}
