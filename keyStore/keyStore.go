////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package keyStore is the reference key material backend for encrypted
// conversations. Session keys come from an X25519 exchange, are derived with
// BLAKE2b and are used with XChaCha20-Poly1305.
package keyStore

import (
	"context"
	"crypto/rand"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/chatsync/encryption"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/xx_network/primitives/netTime"
	"golang.org/x/crypto/chacha20poly1305"
)

// Storage values.
const (
	storePrefix    = "KeyStore"
	keysKeyPrefix  = "keys:"
	currentVersion = 0
)

// Error messages.
const (
	errOpenShort  = "sealed message is shorter than the nonce"
	errNoKeyOpens = "no session key can open the message"
)

// Exchanger sends our public key to the peer and returns the peer's public
// key. It blocks until the peer answers or ctx is cancelled.
type Exchanger interface {
	Exchange(ctx context.Context, ownerID, peerID int64,
		public []byte) ([]byte, error)
}

// Store keeps session keys per (owner, peer, policy). Persisted keys live in
// the versioned KV; RAM keys live only in this process. It implements
// encryption.KeyBackend.
type Store struct {
	kv        *versioned.KV
	exchanger Exchanger

	ram map[string][]SessionKey
	mux sync.RWMutex
}

// New returns a Store writing persisted keys under kv.
func New(kv *versioned.KV, exchanger Exchanger) *Store {
	return &Store{
		kv:        kv.Prefix(storePrefix),
		exchanger: exchanger,
		ram:       make(map[string][]SessionKey),
	}
}

// HasKeys returns true if at least one session key exists.
func (s *Store) HasKeys(ownerID, peerID int64,
	policy encryption.KeyPolicy) (bool, error) {
	keys, err := s.Keys(ownerID, peerID, policy)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Keys returns all session keys, oldest first.
func (s *Store) Keys(ownerID, peerID int64,
	policy encryption.KeyPolicy) ([]SessionKey, error) {
	key := makeKeysKey(ownerID, peerID)
	if policy == encryption.RAM {
		s.mux.RLock()
		defer s.mux.RUnlock()
		return append([]SessionKey(nil), s.ram[key]...), nil
	}

	var keys []SessionKey
	err := s.kv.GetJSON(key, currentVersion, &keys)
	if err != nil && s.kv.Exists(err) {
		return nil, errors.WithMessagef(err,
			"failed to load session keys of %d", peerID)
	}
	return keys, nil
}

// Exchange runs an X25519 exchange with the peer and stores the derived
// session key as the newest one.
func (s *Store) Exchange(ctx context.Context, ownerID, peerID int64,
	policy encryption.KeyPolicy) error {
	pair, err := generateKeyPair(rand.Reader)
	if err != nil {
		return err
	}

	partnerPublic, err := s.exchanger.Exchange(ctx, ownerID, peerID,
		pair.Public[:])
	if err != nil {
		return errors.WithMessagef(err, "exchange with %d failed", peerID)
	}

	shared, err := pair.sharedKey(partnerPublic, ownerID, peerID)
	if err != nil {
		return err
	}

	sk := SessionKey{
		ID:      fingerprint(shared),
		Key:     shared[:],
		Created: netTime.Now(),
	}
	jww.INFO.Printf("[KeyStore] New %s session key %s with %d",
		policy, sk.ID, peerID)
	return s.add(ownerID, peerID, policy, sk)
}

// Seal encrypts plaintext with the newest session key. The output is the
// random nonce followed by the ciphertext.
func (s *Store) Seal(ownerID, peerID int64, policy encryption.KeyPolicy,
	plaintext []byte) ([]byte, error) {
	keys, err := s.Keys(ownerID, peerID, policy)
	if err != nil {
		return nil, err
	} else if len(keys) == 0 {
		return nil, encryption.ErrKeyPairDoesNotExist
	}

	aead, err := chacha20poly1305.NewX(keys[len(keys)-1].Key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	nonce := make([]byte, aead.NonceSize(),
		aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a message produced by Seal, trying the newest key first.
func (s *Store) Open(ownerID, peerID int64, policy encryption.KeyPolicy,
	sealed []byte) ([]byte, error) {
	keys, err := s.Keys(ownerID, peerID, policy)
	if err != nil {
		return nil, err
	} else if len(keys) == 0 {
		return nil, encryption.ErrKeyPairDoesNotExist
	} else if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New(errOpenShort)
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]
	for i := len(keys) - 1; i >= 0; i-- {
		aead, err := chacha20poly1305.NewX(keys[i].Key)
		if err != nil {
			continue
		}
		if plaintext, err := aead.Open(nil, nonce, ciphertext, nil); err == nil {
			return plaintext, nil
		}
	}
	return nil, errors.New(errNoKeyOpens)
}

// Delete removes every session key with the peer under the policy.
func (s *Store) Delete(ownerID, peerID int64, policy encryption.KeyPolicy) error {
	key := makeKeysKey(ownerID, peerID)
	if policy == encryption.RAM {
		s.mux.Lock()
		delete(s.ram, key)
		s.mux.Unlock()
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	return s.kv.Delete(key, currentVersion)
}

func (s *Store) add(ownerID, peerID int64, policy encryption.KeyPolicy,
	sk SessionKey) error {
	key := makeKeysKey(ownerID, peerID)
	s.mux.Lock()
	defer s.mux.Unlock()

	if policy == encryption.RAM {
		s.ram[key] = append(s.ram[key], sk)
		return nil
	}

	var keys []SessionKey
	err := s.kv.GetJSON(key, currentVersion, &keys)
	if err != nil && s.kv.Exists(err) {
		return errors.WithMessagef(err,
			"failed to load session keys of %d", peerID)
	}
	keys = append(keys, sk)
	if err = s.kv.SetJSON(key, currentVersion, keys); err != nil {
		return errors.WithMessagef(err,
			"failed to store session keys of %d", peerID)
	}
	return nil
}

func makeKeysKey(ownerID, peerID int64) string {
	return keysKeyPrefix + strconv.FormatInt(ownerID, 10) + ":" +
		strconv.FormatInt(peerID, 10)
}
