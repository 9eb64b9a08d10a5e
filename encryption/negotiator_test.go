////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package encryption

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/elixxir/ekv"
)

// mockBackend marks a key present once Exchange runs, unless failing.
type mockBackend struct {
	keys map[KeyPolicy]map[int64]bool
	fail bool
	mux  sync.Mutex
}

func newMockBackend() *mockBackend {
	return &mockBackend{keys: map[KeyPolicy]map[int64]bool{
		Persist: {}, RAM: {}}}
}

func (m *mockBackend) HasKeys(_, peerID int64, policy KeyPolicy) (bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.keys[policy][peerID], nil
}

func (m *mockBackend) Exchange(ctx context.Context, _, peerID int64,
	policy KeyPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.fail {
		return errors.New("exchange rejected")
	}
	m.keys[policy][peerID] = true
	return nil
}

func (m *mockBackend) Seal(_, peerID int64, policy KeyPolicy,
	plaintext []byte) ([]byte, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.keys[policy][peerID] {
		return nil, ErrKeyPairDoesNotExist
	}
	return append([]byte(policy.String()+":"), plaintext...), nil
}

type reportedEvent struct {
	priority               int
	category, evt, details string
}

type mockReporter struct {
	events []reportedEvent
	mux    sync.Mutex
}

func (r *mockReporter) Report(priority int, category, evt, details string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, reportedEvent{priority, category, evt, details})
}

var peer = message.Peer{ID: 2, Kind: message.User}

func newTestNegotiator(t *testing.T) (*Negotiator, *mockBackend,
	*mockReporter, *versioned.KV) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	backend := newMockBackend()
	reporter := &mockReporter{}
	n, err := NewNegotiator(1, kv, backend, reporter)
	require.NoError(t, err)
	return n, backend, reporter, kv
}

func TestNegotiator_IsSupported(t *testing.T) {
	n, _, _, _ := newTestNegotiator(t)

	require.True(t, n.IsSupported(peer))
	require.False(t, n.IsSupported(message.Peer{ID: 1, Kind: message.User}))
	require.False(t, n.IsSupported(message.Peer{ID: 3, Kind: message.Group}))
	require.False(t, n.IsSupported(message.Peer{ID: 4, Kind: message.Channel}))
	require.False(t, n.IsSupported(message.Peer{ID: 5, Kind: message.Chat}))
}

// Enable without keys fails and leaves the settings unchanged.
func TestNegotiator_EnableWithoutKeys(t *testing.T) {
	n, _, _, _ := newTestNegotiator(t)
	require.NoError(t, n.AcceptDisclaimer())

	err := n.Enable(peer, Persist)
	require.ErrorIs(t, err, ErrKeyPairDoesNotExist)
	require.False(t, n.IsEnabled(peer.ID))
	require.Equal(t, Settings{}, n.Settings(peer.ID))
}

func TestNegotiator_DisclaimerGate(t *testing.T) {
	n, backend, _, kv := newTestNegotiator(t)
	backend.keys[Persist][peer.ID] = true

	require.ErrorIs(t, n.Enable(peer, Persist), ErrDisclaimerRequired)
	require.ErrorIs(t, n.InitiateExchange(context.Background(), peer, RAM),
		ErrDisclaimerRequired)

	require.NoError(t, n.AcceptDisclaimer())
	require.True(t, n.DisclaimerAccepted())

	// Acceptance is stored
	reloaded, err := NewNegotiator(1, kv, backend, nil)
	require.NoError(t, err)
	require.True(t, reloaded.DisclaimerAccepted())
}

// A finished exchange is reported and lets Enable succeed.
func TestNegotiator_ExchangeThenEnable(t *testing.T) {
	n, _, reporter, kv := newTestNegotiator(t)
	require.NoError(t, n.AcceptDisclaimer())

	done := make(chan error, 1)
	n.SetExchangeCallback(func(peerID int64, policy KeyPolicy, err error) {
		if peerID != peer.ID || policy != RAM {
			t.Errorf("Unexpected exchange callback: %d %s", peerID, policy)
		}
		done <- err
	})

	require.False(t, n.HasKeys(peer.ID, RAM))
	require.NoError(t, n.InitiateExchange(context.Background(), peer, RAM))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for the key exchange.")
	}
	n.Wait()

	require.True(t, n.HasKeys(peer.ID, RAM))
	require.False(t, n.HasKeys(peer.ID, Persist))
	require.Len(t, reporter.events, 1)
	require.Equal(t, exchangeEventType, reporter.events[0].evt)

	require.NoError(t, n.Enable(peer, RAM))
	require.Equal(t, Settings{Enabled: true, Policy: RAM}, n.Settings(peer.ID))

	sealed, err := n.Seal(peer.ID, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("ram:x"), sealed)

	require.NoError(t, n.Disable(peer.ID))
	require.False(t, n.IsEnabled(peer.ID))

	// Settings are stored
	reloaded, err := NewNegotiator(1, kv, newMockBackend(), nil)
	require.NoError(t, err)
	require.Equal(t, Settings{Policy: RAM}, reloaded.Settings(peer.ID))
}

func TestNegotiator_ExchangeFailure(t *testing.T) {
	n, backend, reporter, _ := newTestNegotiator(t)
	require.NoError(t, n.AcceptDisclaimer())
	backend.fail = true

	require.NoError(t, n.InitiateExchange(context.Background(), peer, Persist))
	n.Wait()

	require.False(t, n.HasKeys(peer.ID, Persist))
	require.Len(t, reporter.events, 1)
	require.Equal(t, exchangeFailedEvent, reporter.events[0].evt)
	require.ErrorIs(t, n.Enable(peer, Persist), ErrKeyPairDoesNotExist)
}

// blockingBackend holds every exchange until released or cancelled.
type blockingBackend struct {
	*mockBackend
	started chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Exchange(ctx context.Context, ownerID, peerID int64,
	policy KeyPolicy) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return b.mockBackend.Exchange(ctx, ownerID, peerID, policy)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The exchange outlives the context it was started with and only stops on
// Close.
func TestNegotiator_ExchangeOutlivesCaller(t *testing.T) {
	backend := &blockingBackend{mockBackend: newMockBackend(),
		started: make(chan struct{}, 2), release: make(chan struct{})}
	n, err := NewNegotiator(1, versioned.NewKV(ekv.MakeMemstore()), backend,
		&mockReporter{})
	require.NoError(t, err)
	require.NoError(t, n.AcceptDisclaimer())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.InitiateExchange(ctx, peer, RAM))
	<-backend.started
	cancel()
	close(backend.release)
	n.Wait()
	require.True(t, n.HasKeys(peer.ID, RAM))

	// A cancelled context does not start anything
	require.ErrorIs(t, n.InitiateExchange(ctx, peer, Persist),
		context.Canceled)
	require.False(t, n.HasKeys(peer.ID, Persist))
}

func TestNegotiator_Close(t *testing.T) {
	backend := &blockingBackend{mockBackend: newMockBackend(),
		started: make(chan struct{}, 2), release: make(chan struct{})}
	reporter := &mockReporter{}
	n, err := NewNegotiator(1, versioned.NewKV(ekv.MakeMemstore()), backend,
		reporter)
	require.NoError(t, err)
	require.NoError(t, n.AcceptDisclaimer())

	done := make(chan error, 1)
	n.SetExchangeCallback(func(_ int64, _ KeyPolicy, err error) {
		done <- err
	})
	require.NoError(t, n.InitiateExchange(context.Background(), peer, RAM))
	<-backend.started
	n.Close()

	require.ErrorIs(t, <-done, context.Canceled)
	require.False(t, n.HasKeys(peer.ID, RAM))
	require.Len(t, reporter.events, 1)
	require.Equal(t, exchangeFailedEvent, reporter.events[0].evt)
	require.ErrorIs(t, n.InitiateExchange(context.Background(), peer, RAM),
		ErrClosed)
}

func TestNegotiator_NotSupported(t *testing.T) {
	n, _, _, _ := newTestNegotiator(t)
	require.NoError(t, n.AcceptDisclaimer())
	group := message.Peer{ID: 9, Kind: message.Group}

	require.ErrorIs(t, n.Enable(group, Persist), ErrNotSupported)
	require.ErrorIs(t, n.InitiateExchange(context.Background(), group, RAM),
		ErrNotSupported)
}

func TestKeyPolicy_String(t *testing.T) {
	require.Equal(t, "persist", Persist.String())
	require.Equal(t, "ram", RAM.String())
	require.Equal(t, "INVALID KEY POLICY: 7", KeyPolicy(7).String())
}
