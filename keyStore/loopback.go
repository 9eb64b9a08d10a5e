////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package keyStore

import (
	"context"
	"crypto/rand"

	"gitlab.com/elixxir/chatsync/encryption"
)

// Loopback is an Exchanger that answers for the peer locally. The peer side
// of every exchange is kept in Partner so both ends can be checked. Used by
// the CLI and tests.
type Loopback struct {
	// Partner receives the peer's view of each exchange as a RAM key when
	// set.
	Partner *Store
}

// Exchange generates the peer's key pair, stores the peer's session key in
// Partner and returns the peer's public key.
func (l *Loopback) Exchange(ctx context.Context, ownerID, peerID int64,
	public []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pair, err := generateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}

	if l.Partner != nil {
		shared, err := pair.sharedKey(public, peerID, ownerID)
		if err != nil {
			return nil, err
		}
		err = l.Partner.add(peerID, ownerID, encryption.RAM, SessionKey{
			ID:  fingerprint(shared),
			Key: shared[:],
		})
		if err != nil {
			return nil, err
		}
	}
	return pair.Public[:], nil
}
