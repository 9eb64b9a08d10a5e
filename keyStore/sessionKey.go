////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyStore

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"time"

	"github.com/cloudflare/circl/dh/x25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const sessionKeyContext = "chatsyncSessionKey"

// SessionKey is one symmetric key shared with a peer.
type SessionKey struct {
	ID      string    `json:"id"`
	Key     []byte    `json:"key"`
	Created time.Time `json:"created"`
}

// KeyPair is an X25519 key pair used for a single exchange.
type KeyPair struct {
	Public  x25519.Key
	private x25519.Key
}

// generateKeyPair reads a private key from rng and derives its public key.
func generateKeyPair(rng io.Reader) (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rng, kp.private[:]); err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	x25519.KeyGen(&kp.Public, &kp.private)
	return kp, nil
}

// sharedKey computes the X25519 secret with the partner and hashes it with
// both account IDs. The IDs are sorted so both sides derive the same key.
func (kp *KeyPair) sharedKey(partnerPublic []byte, ownerID,
	peerID int64) ([32]byte, error) {
	if len(partnerPublic) != x25519.Size {
		return [32]byte{}, errors.Errorf(
			"partner public key has length %d, expected %d",
			len(partnerPublic), x25519.Size)
	}

	var public, secret x25519.Key
	copy(public[:], partnerPublic)
	if !x25519.Shared(&secret, &kp.private, &public) {
		return [32]byte{}, errors.New("partner public key is low order")
	}

	low, high := ownerID, peerID
	if low > high {
		low, high = high, low
	}
	ids := make([]byte, 16)
	binary.BigEndian.PutUint64(ids[:8], uint64(low))
	binary.BigEndian.PutUint64(ids[8:], uint64(high))

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "failed to create hash")
	}
	h.Write([]byte(sessionKeyContext))
	h.Write(secret[:])
	h.Write(ids)

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key, nil
}

// fingerprint returns a short printable ID for the key.
func fingerprint(key [32]byte) string {
	sum := blake2b.Sum256(key[:])
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}
