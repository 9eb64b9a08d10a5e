////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/chatsync/message"
	"gitlab.com/elixxir/chatsync/stoppable"
	"gitlab.com/elixxir/chatsync/storage/versioned"
	"gitlab.com/elixxir/ekv"
)

// gatedTransport blocks every upload until the test releases it.
type gatedTransport struct {
	started chan Upload
	results chan error
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{
		started: make(chan Upload, 10),
		results: make(chan error, 10),
	}
}

func (g *gatedTransport) Upload(ctx context.Context, u Upload,
	progress ProgressFunc) (message.Attachment, error) {
	progress(50)
	g.started <- u
	select {
	case <-ctx.Done():
		return message.Attachment{}, ctx.Err()
	case err := <-g.results:
		if err != nil {
			return message.Attachment{}, err
		}
		return message.Attachment{Type: u.Destination.Method.AttachmentType(),
			Name: u.Path}, nil
	}
}

// recorder is a Listener that records every callback.
type recorder struct {
	mux      sync.Mutex
	added    []ID
	removed  []ID
	statuses []Status
	results  []ID
	progress []int
}

func (r *recorder) OnAdded(uploads []Upload) {
	r.mux.Lock()
	defer r.mux.Unlock()
	for _, u := range uploads {
		r.added = append(r.added, u.ID)
	}
}
func (r *recorder) OnRemoved(ids []ID) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.removed = append(r.removed, ids...)
}
func (r *recorder) OnProgress(_ ID, percent int) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.progress = append(r.progress, percent)
}
func (r *recorder) OnStatusChanged(u Upload) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.statuses = append(r.statuses, u.Status)
}
func (r *recorder) OnResult(u Upload, _ message.Attachment) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.results = append(r.results, u.ID)
}
func (r *recorder) snapshot() recorder {
	r.mux.Lock()
	defer r.mux.Unlock()
	return recorder{
		added:    append([]ID(nil), r.added...),
		removed:  append([]ID(nil), r.removed...),
		statuses: append([]Status(nil), r.statuses...),
		results:  append([]ID(nil), r.results...),
		progress: append([]int(nil), r.progress...),
	}
}

var draftDest = Destination{Kind: ToMessage, ID: 100, Method: Photo}

func newTestCoordinator(t *testing.T, kv *versioned.KV) (
	*Coordinator, *gatedTransport, *recorder) {
	transport := newGatedTransport()
	params := GetDefaultParams()
	params.ProgressRate = 1000
	c, err := NewCoordinator(kv, transport, params)
	require.NoError(t, err)
	rec := &recorder{}
	c.Subscribe(rec)
	stop := c.Start()
	t.Cleanup(func() {
		require.NoError(t, stop.Close())
		require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
	})
	return c, transport, rec
}

func photoIntent(path string) Intent {
	return Intent{AccountID: 1, Destination: draftDest, Path: path, Size: 10}
}

func TestCoordinator_Enqueue_Result(t *testing.T) {
	c, transport, rec := newTestCoordinator(t,
		versioned.NewKV(ekv.MakeMemstore()))

	ids, err := c.Enqueue([]Intent{photoIntent("a.jpg"), photoIntent("b.jpg")})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Uploads run one at a time in order.
	first := <-transport.started
	require.Equal(t, ids[0], first.ID)
	cur, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, Uploading, cur.Status)
	require.Eventually(t, func() bool {
		return len(rec.snapshot().progress) > 0
	}, time.Second, time.Millisecond)

	transport.results <- nil
	second := <-transport.started
	require.Equal(t, ids[1], second.ID)
	transport.results <- nil

	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, time.Millisecond)
	got := rec.snapshot()
	require.Equal(t, ids, got.added)
	require.Equal(t, ids, got.results)
	require.Empty(t, got.removed)
	require.Equal(t, 50, got.progress[0])
}

func TestCoordinator_Fail_Retry(t *testing.T) {
	c, transport, rec := newTestCoordinator(t,
		versioned.NewKV(ekv.MakeMemstore()))
	ids, err := c.Enqueue([]Intent{photoIntent("a.jpg")})
	require.NoError(t, err)

	<-transport.started
	transport.results <- errors.New("server rejected file")
	require.Eventually(t, func() bool {
		u, _ := c.Lookup(ids[0])
		return u.Status == Error
	}, time.Second, time.Millisecond)

	u, _ := c.Lookup(ids[0])
	require.Equal(t, "server rejected file", u.ErrorText)
	require.Error(t, c.Retry("missing"))

	require.NoError(t, c.Retry(ids[0]))
	<-transport.started
	transport.results <- nil
	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, time.Millisecond)
	require.Equal(t, []ID{ids[0]}, rec.snapshot().results)
}

// Cancelling the running upload aborts the transport and starts the next.
func TestCoordinator_Cancel(t *testing.T) {
	c, transport, rec := newTestCoordinator(t,
		versioned.NewKV(ekv.MakeMemstore()))
	ids, err := c.Enqueue([]Intent{photoIntent("a.jpg"), photoIntent("b.jpg")})
	require.NoError(t, err)

	<-transport.started
	require.NoError(t, c.Cancel(ids[0]))
	require.Error(t, c.Cancel(ids[0]))
	_, ok := c.Lookup(ids[0])
	require.False(t, ok)

	next := <-transport.started
	require.Equal(t, ids[1], next.ID)
	require.Equal(t, []ID{ids[0]}, rec.snapshot().removed)
	require.Contains(t, rec.snapshot().statuses, Cancelling)
}

// CancelAll matches on destination kind and ID for any method.
func TestCoordinator_CancelAll(t *testing.T) {
	c, transport, _ := newTestCoordinator(t,
		versioned.NewKV(ekv.MakeMemstore()))
	video := Intent{AccountID: 1, Path: "v.mp4",
		Destination: Destination{Kind: ToMessage, ID: 100, Method: Video}}
	other := Intent{AccountID: 1, Path: "o.jpg",
		Destination: Destination{Kind: ToMessage, ID: 200, Method: Photo}}
	ids, err := c.Enqueue([]Intent{photoIntent("a.jpg"), video, other})
	require.NoError(t, err)
	<-transport.started

	removed := c.CancelAll(1, Destination{Kind: ToMessage, ID: 100})
	require.ElementsMatch(t, ids[:2], removed)
	require.Empty(t, c.Get(1, Destination{Kind: ToMessage, ID: 100}))
	require.Len(t, c.Get(1, Destination{Kind: ToMessage, ID: 200}), 1)

	next := <-transport.started
	require.Equal(t, ids[2], next.ID)
}

func TestCoordinator_Enqueue_Invalid(t *testing.T) {
	params := GetDefaultParams()
	params.MaxSize = 5
	c, err := NewCoordinator(versioned.NewKV(ekv.MakeMemstore()),
		newGatedTransport(), params)
	require.NoError(t, err)

	_, err = c.Enqueue([]Intent{{AccountID: 1, Destination: draftDest}})
	require.Error(t, err)
	_, err = c.Enqueue([]Intent{photoIntent("big.jpg")})
	require.Error(t, err)
	require.Equal(t, 0, c.Len())
}

// The queue survives a restart and interrupted uploads are queued again.
func TestCoordinator_Load(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	transport := newGatedTransport()
	c, err := NewCoordinator(kv, transport, GetDefaultParams())
	require.NoError(t, err)
	stop := c.Start()
	ids, err := c.Enqueue([]Intent{photoIntent("a.jpg")})
	require.NoError(t, err)
	<-transport.started
	require.NoError(t, stop.Close())
	require.NoError(t, stoppable.WaitForStopped(stop, time.Second))

	reloaded, err := NewCoordinator(kv, newGatedTransport(), GetDefaultParams())
	require.NoError(t, err)
	u, ok := reloaded.Lookup(ids[0])
	require.True(t, ok)
	require.Equal(t, Queued, u.Status)
}

// Results of message uploads are kept, across restarts, until acknowledged.
func TestCoordinator_Completions(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	c, transport, _ := newTestCoordinator(t, kv)
	dest := Destination{Kind: ToMessage, PeerID: 7, ID: 100, Method: Photo}
	photo := Intent{AccountID: 1, Destination: dest, Path: "a.jpg", Size: 10}
	profile := Intent{AccountID: 1, Path: "p.jpg", Destination: Destination{
		Kind: ToConversation, PeerID: 7, ID: 7, Method: Photo}}
	ids, err := c.Enqueue([]Intent{photo, profile})
	require.NoError(t, err)

	<-transport.started
	transport.results <- nil
	<-transport.started
	transport.results <- nil
	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, time.Millisecond)

	done, ok := c.Completed(ids[0])
	require.True(t, ok)
	require.Equal(t, "a.jpg", done.Attachment.Name)
	require.Equal(t, dest, done.Upload.Destination)
	_, ok = c.Completed(ids[1])
	require.False(t, ok, "conversation uploads are not kept")

	require.Len(t, c.Completions(1, 7), 1)
	require.Empty(t, c.Completions(2, 7))
	require.Empty(t, c.Completions(1, 8))

	reloaded, err := NewCoordinator(kv, newGatedTransport(), GetDefaultParams())
	require.NoError(t, err)
	kept := reloaded.Completions(1, 7)
	require.Len(t, kept, 1)
	require.Equal(t, ids[0], kept[0].Upload.ID)

	reloaded.Acknowledge(ids[0], "unknown")
	require.Empty(t, reloaded.Completions(1, 7))

	again, err := NewCoordinator(kv, newGatedTransport(), GetDefaultParams())
	require.NoError(t, err)
	_, ok = again.Completed(ids[0])
	require.False(t, ok)
}

func TestGetParameters(t *testing.T) {
	p, err := GetParameters(`{"ProgressRate": 5}`)
	require.NoError(t, err)
	require.Equal(t, 5, p.ProgressRate)

	p, err = GetParameters("")
	require.NoError(t, err)
	require.Equal(t, GetDefaultParams(), p)

	_, err = GetParameters("{")
	require.Error(t, err)
}
