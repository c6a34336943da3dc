package chatsync

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// snapshotEvent carries a snapshot tagged with the epoch of the subscription it came from.
type snapshotEvent struct {
	epoch uint64
	coll  chat.Collection
}

// streamEnded reports that the subscription of epoch closed its snapshot channel
// without being detached, e.g. the server rejected the stream.
type streamEnded struct {
	epoch uint64
}

// streamSync owns the single subscription handle and the live collection.
// It is only touched by the client's event loop.
type streamSync struct {
	store store.Store

	sub    store.Subscription
	cancel context.CancelFunc

	// epoch increases on every detach; events from older epochs are stale.
	epoch    uint64
	coll     chat.Collection
	baseline bool
}

func newStreamSync(st store.Store) *streamSync {
	return &streamSync{store: st}
}

func (s *streamSync) active() bool { return s.sub != nil }

// detach releases the current handle and clears the collection. Safe without a handle.
func (s *streamSync) detach() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.sub != nil {
		id := s.sub.Identity()
		if err := s.sub.Close(); err != nil {
			log.Warn().Err(err).Str("component", "chatsync").Str("identity", string(id)).Msg("subscription close failed")
		}
		s.sub = nil
		log.Debug().Str("component", "chatsync").Str("identity", string(id)).Msg("detached")
	}
	s.coll = chat.Collection{}
	s.baseline = false
	s.epoch++
}

// attach subscribes for id and starts forwarding its snapshots to post.
// The caller must have detached first.
func (s *streamSync) attach(ctx context.Context, id chat.Identity, post func(context.Context, any) bool) error {
	sub, err := s.store.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	fwdCtx, cancel := context.WithCancel(ctx)
	s.sub = sub
	s.cancel = cancel
	s.coll = chat.Collection{Identity: id}
	epoch := s.epoch
	go func() {
		for {
			select {
			case <-fwdCtx.Done():
				return
			case coll, ok := <-sub.Snapshots():
				if !ok {
					post(fwdCtx, streamEnded{epoch: epoch})
					return
				}
				if !post(fwdCtx, snapshotEvent{epoch: epoch, coll: coll}) {
					return
				}
			}
		}
	}()
	log.Debug().Str("component", "chatsync").Str("identity", string(id)).Uint64("epoch", epoch).Msg("attached")
	return nil
}

// apply replaces the collection with a current-epoch snapshot. It returns the bot
// messages that were not in the previous snapshot of this epoch. The first snapshot
// only sets the baseline, except for replies to pending: bot messages after the
// pending user message count as new even when they arrive with the baseline.
func (s *streamSync) apply(ev snapshotEvent, pending *submission) (newBot []chat.Message, ok bool) {
	if s.sub == nil || ev.epoch != s.epoch || ev.coll.Identity != s.sub.Identity() {
		return nil, false
	}
	prev := s.coll
	s.coll = ev.coll.Clone()
	if !s.baseline {
		s.baseline = true
		if pending == nil {
			return nil, true
		}
		return repliesAfter(s.coll, *pending), true
	}
	return s.coll.NewBotMessages(prev), true
}

// repliesAfter returns the bot messages that follow the user message of sub. The
// message is found by its log key once the write returned one, else by its text.
func repliesAfter(coll chat.Collection, sub submission) []chat.Message {
	at := -1
	for i := len(coll.Messages) - 1; i >= 0; i-- {
		m := coll.Messages[i]
		if m.Author != chat.AuthorUser {
			continue
		}
		if (sub.key != "" && m.ID == sub.key) || (sub.key == "" && m.Text == sub.text) {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	var out []chat.Message
	for _, m := range coll.Messages[at+1:] {
		if m.IsBot() {
			out = append(out, m)
		}
	}
	return out
}
