package chatsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/store"
)

type fakeSessions struct {
	ch chan chat.Transition
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ch: make(chan chat.Transition, 8)}
}

func (f *fakeSessions) Transitions() <-chan chat.Transition { return f.ch }

type fakeSub struct {
	id        chat.Identity
	ch        chan chat.Collection
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()
	// ended subscriptions had their snapshot channel closed by the store
	ended bool
}

func (s *fakeSub) Identity() chat.Identity           { return s.id }
func (s *fakeSub) Snapshots() <-chan chat.Collection { return s.ch }

func (s *fakeSub) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.onClose()
	})
	return nil
}

func (s *fakeSub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// send delivers coll latest-wins, like the real stores.
func (s *fakeSub) send(coll chat.Collection) {
	if s.ended || s.isClosed() {
		return
	}
	select {
	case s.ch <- coll:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- coll:
	default:
	}
}

type pushCall struct {
	id    chat.Identity
	entry store.Entry
}

// fakeStore keeps logs in memory and pushes full snapshots to live subscriptions.
type fakeStore struct {
	mu        sync.Mutex
	logs      map[chat.Identity][]chat.Message
	subs      []*fakeSub
	active    int
	maxActive int
	pushes    []pushCall
	pushErr   error
	seq       int
	// held keeps snapshots from subscribers until flush
	held bool
	// ended makes Subscribe hand out already-closed snapshot channels
	ended bool
}

var _ store.Store = &fakeStore{}

func newFakeStore() *fakeStore {
	return &fakeStore{logs: map[chat.Identity][]chat.Message{}}
}

func (f *fakeStore) Subscribe(_ context.Context, id chat.Identity) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{id: id, ch: make(chan chat.Collection, 1), closed: make(chan struct{})}
	sub.onClose = func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}
	f.subs = append(f.subs, sub)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	switch {
	case f.ended:
		sub.ended = true
		close(sub.ch)
	case !f.held:
		sub.send(f.snapshotLocked(id))
	}
	return sub, nil
}

func (f *fakeStore) Push(_ context.Context, id chat.Identity, e store.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushCall{id: id, entry: e})
	if f.pushErr != nil {
		return "", f.pushErr
	}
	return f.appendLocked(id, e.Text, e.Author), nil
}

// reply appends a bot message as the external reply producer would.
func (f *fakeStore) reply(id chat.Identity, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendLocked(id, text, chat.AuthorBot)
}

func (f *fakeStore) appendLocked(id chat.Identity, text string, author chat.Author) string {
	f.seq++
	key := fmt.Sprintf("k%04d", f.seq)
	f.logs[id] = append(f.logs[id], chat.Message{ID: key, Text: text, Author: author, Timestamp: int64(f.seq)})
	if !f.held {
		f.deliverLocked(id)
	}
	return key
}

func (f *fakeStore) deliverLocked(id chat.Identity) {
	coll := f.snapshotLocked(id)
	for _, s := range f.subs {
		if s.id == id {
			s.send(coll)
		}
	}
}

func (f *fakeStore) hold() {
	f.mu.Lock()
	f.held = true
	f.mu.Unlock()
}

// flush delivers the current log of id as one snapshot and stops holding.
func (f *fakeStore) flush(id chat.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.deliverLocked(id)
}

// endSub closes the snapshot channel of s as a store does when the stream is rejected.
func (f *fakeStore) endSub(s *fakeSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ended = true
	close(s.ch)
}

func (f *fakeStore) endStreams() {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
}

func (f *fakeStore) snapshotLocked(id chat.Identity) chat.Collection {
	return chat.Collection{Identity: id, Messages: append([]chat.Message(nil), f.logs[id]...)}
}

func (f *fakeStore) setPushErr(err error) {
	f.mu.Lock()
	f.pushErr = err
	f.mu.Unlock()
}

func (f *fakeStore) stats() (active, maxActive int, pushes []pushCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.maxActive, append([]pushCall(nil), f.pushes...)
}

func (f *fakeStore) lastSub() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatch.Request
	err   error
	block chan struct{}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req dispatch.Request) error {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	err, block := d.err, d.block
	d.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDispatcher) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDispatcher) requests() []dispatch.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Request(nil), d.calls...)
}

type harness struct {
	t        *testing.T
	client   *Client
	sessions *fakeSessions
	store    *fakeStore
	disp     *fakeDispatcher
	cancel   context.CancelFunc
	stopped  chan struct{}
	current  chat.Identity

	mu      sync.Mutex
	updates []Update
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		sessions: newFakeSessions(),
		store:    newFakeStore(),
		disp:     &fakeDispatcher{},
		stopped:  make(chan struct{}),
	}
	c, err := New(h.store, h.disp, h.sessions, opts...)
	require.NoError(t, err)
	h.client = c

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = c.Run(ctx)
	}()
	go func() {
		for u := range c.Updates() {
			h.mu.Lock()
			h.updates = append(h.updates, u)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.stopped:
	case <-time.After(2 * time.Second):
		h.t.Fatal("client did not stop")
	}
}

func (h *harness) switchTo(id chat.Identity) {
	h.sessions.ch <- chat.Transition{From: h.current, To: id}
	h.current = id
	h.waitView(func(v View) bool { return v.Identity == id })
}

func (h *harness) waitView(pred func(View) bool) View {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return pred(h.client.View()) }, 2*time.Second, 5*time.Millisecond)
	return h.client.View()
}

func (h *harness) recorded() []Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Update(nil), h.updates...)
}

func (h *harness) notices() []Notice {
	var out []Notice
	for _, u := range h.recorded() {
		if u.Notice != nil {
			out = append(out, *u.Notice)
		}
	}
	return out
}

func (h *harness) submit(raw string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.client.Submit(ctx, raw)
}

var errBoom = errors.New("boom")
