package store

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// logSubscription owns the notification channel of one identity, reloads the full log
// on every change and hands the result to its consumer.
type logSubscription struct {
	id      chat.Identity
	out     chan chat.Collection
	cancel  context.CancelFunc
	release func() error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Subscription = &logSubscription{}

func newLogSubscription(id chat.Identity, cancel context.CancelFunc, release func() error) *logSubscription {
	return &logSubscription{
		id:      id,
		out:     make(chan chat.Collection, 1),
		cancel:  cancel,
		release: release,
		done:    make(chan struct{}),
	}
}

func (s *logSubscription) Identity() chat.Identity { return s.id }

func (s *logSubscription) Snapshots() <-chan chat.Collection { return s.out }

func (s *logSubscription) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

func (s *logSubscription) run(ctx context.Context, ch <-chan *message.Message, load func(context.Context) (chat.Collection, error)) {
	defer close(s.done)
	defer close(s.out)

	logger := log.With().Str("component", "store").Str("identity", string(s.id)).Logger()
	logger.Debug().Msg("subscription: started")
	defer logger.Debug().Msg("subscription: stopped")

	if !s.emit(ctx, load) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			msg.Ack()
			if !s.emit(ctx, load) {
				return
			}
		}
	}
}

// emit loads and delivers a snapshot. Snapshots are complete values, so an undelivered
// older one is replaced by the newer one. It returns false once ctx is done.
func (s *logSubscription) emit(ctx context.Context, load func(context.Context) (chat.Collection, error)) bool {
	coll, err := load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn().Err(err).Str("component", "store").Str("identity", string(s.id)).Msg("subscription: load failed")
		return true
	}
	return sendLatest(ctx.Done(), s.out, coll)
}
