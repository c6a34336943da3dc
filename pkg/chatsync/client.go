// Package chatsync is the client-side synchronization core: it follows session
// transitions, keeps exactly one live message subscription for the current identity,
// submits user messages and drives the typing indicator until the assistant replies.
//
// All state is owned by the goroutine running Client.Run. Session transitions,
// snapshots, write and dispatch completions, timers and UI requests all reach it as
// events, so no state is shared across goroutines.
package chatsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/store"
)

const (
	DefaultReplyTimeout    = 45 * time.Second
	DefaultDispatchTimeout = 20 * time.Second
	DefaultAppendTimeout   = 10 * time.Second
)

// Sessions is the source of session transitions, usually an *auth.SessionManager.
type Sessions interface {
	Transitions() <-chan chat.Transition
}

type Option func(*Client)

// WithReplyTimeout bounds how long typing stays pending without a reply.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.replyTimeout = d
		}
	}
}

func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dispatchTimeout = d
		}
	}
}

func WithAppendTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.appendTimeout = d
		}
	}
}

type Client struct {
	dispatcher dispatch.Dispatcher
	sessions   Sessions

	replyTimeout    time.Duration
	dispatchTimeout time.Duration
	appendTimeout   time.Duration

	events  chan any
	updates chan Update
	done    chan struct{}
	started atomic.Bool
	view    atomic.Pointer[View]
	ops     sync.WaitGroup

	// owned by Run
	identity chat.Identity
	stream   *streamSync
	typing   typingMachine
	composer composer
	timer    *time.Timer
}

func New(st store.Store, d dispatch.Dispatcher, sessions Sessions, opts ...Option) (*Client, error) {
	if st == nil {
		return nil, errors.New("chatsync: store is nil")
	}
	if d == nil {
		return nil, errors.New("chatsync: dispatcher is nil")
	}
	if sessions == nil {
		return nil, errors.New("chatsync: sessions is nil")
	}
	c := &Client{
		dispatcher:      d,
		sessions:        sessions,
		replyTimeout:    DefaultReplyTimeout,
		dispatchTimeout: DefaultDispatchTimeout,
		appendTimeout:   DefaultAppendTimeout,
		events:          make(chan any, 64),
		updates:         make(chan Update, updateBuffer),
		done:            make(chan struct{}),
		stream:          newStreamSync(st),
	}
	for _, o := range opts {
		o(c)
	}
	c.view.Store(&View{})
	return c, nil
}

// Updates delivers a View after every state change, with a Notice attached when a
// recoverable error occurred. It is closed when Run returns.
func (c *Client) Updates() <-chan Update { return c.updates }

// View returns the most recently published view.
func (c *Client) View() View { return *c.view.Load() }

// Run is the event loop. It returns when ctx is done or the session stream ends, and
// always releases the active subscription.
func (c *Client) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("chatsync: client already running")
	}
	logger := log.With().Str("component", "chatsync").Logger()
	logger.Debug().Msg("client loop started")

	defer func() {
		c.stream.detach()
		c.stopTimer()
		close(c.done)
		c.ops.Wait()
		close(c.updates)
		logger.Debug().Msg("client loop stopped")
	}()

	transitions := c.sessions.Transitions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-transitions:
			if !ok {
				return nil
			}
			c.onTransition(ctx, t)
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// post hands ev to the loop. It returns false when ctx is done or the loop has exited.
func (c *Client) post(ctx context.Context, ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Client) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case snapshotEvent:
		c.onSnapshot(ev)
	case streamEnded:
		c.onStreamEnded(ev)
	case submitRequest:
		err := c.onSubmit(ctx, ev.raw)
		ev.reply <- err
	case setInputRequest:
		c.composer.input = ev.text
		c.publish(nil)
	case appendFinished:
		c.onAppendFinished(ev)
	case dispatchFinished:
		c.onDispatchFinished(ev)
	case replyTimeout:
		c.onReplyTimeout(ev)
	default:
		log.Warn().Str("component", "chatsync").Msgf("unknown event %T", ev)
	}
}

// onTransition enforces detach, clear and reset before the new identity is attached.
func (c *Client) onTransition(ctx context.Context, t chat.Transition) {
	logger := log.With().Str("component", "chatsync").Str("from", string(t.From)).Str("to", string(t.To)).Logger()
	c.stream.detach()
	c.stopTimer()
	c.fire(sessionReset)
	c.composer.reset()
	c.identity = t.To

	var notice *Notice
	if !t.To.IsNone() {
		if err := c.stream.attach(ctx, t.To, c.post); err != nil {
			logger.Error().Err(err).Msg("subscribe failed")
			notice = &Notice{Kind: NoticeSubscribe, Err: err}
		}
	}
	logger.Info().Msg("session applied")
	c.publish(notice)
}

func (c *Client) onSnapshot(ev snapshotEvent) {
	var pending *submission
	if c.typing.state == TypingPending {
		pending = &c.composer.last
	}
	newBot, ok := c.stream.apply(ev, pending)
	if !ok {
		log.Debug().Str("component", "chatsync").Uint64("epoch", ev.epoch).Msg("discarded stale snapshot")
		return
	}
	if len(newBot) > 0 && c.fire(botReplyObserved) {
		c.stopTimer()
	}
	c.publish(nil)
}

// onStreamEnded drops a subscription whose snapshots stopped on their own. The
// identity stays; the next session transition subscribes again.
func (c *Client) onStreamEnded(ev streamEnded) {
	if ev.epoch != c.stream.epoch || !c.stream.active() {
		return
	}
	err := errors.Errorf("message stream for %s ended", c.identity)
	log.Warn().Err(err).Str("component", "chatsync").Uint64("epoch", ev.epoch).Msg("subscription lost")
	c.stream.detach()
	c.stopTimer()
	c.fire(sessionReset)
	c.publish(&Notice{Kind: NoticeSubscribe, Err: err})
}

func (c *Client) fire(trigger typingTrigger) bool {
	before := c.typing.state
	if !c.typing.fire(trigger) {
		return false
	}
	if before != c.typing.state {
		log.Debug().Str("component", "chatsync").Str("trigger", trigger.String()).
			Str("from", before.String()).Str("to", c.typing.state.String()).Msg("typing")
	}
	return true
}

func (c *Client) armTimer(epoch, ticket uint64) {
	c.stopTimer()
	c.timer = time.AfterFunc(c.replyTimeout, func() {
		// blocks until the loop takes it or exits
		c.post(context.Background(), replyTimeout{epoch: epoch, ticket: ticket})
	})
}

func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) publish(notice *Notice) {
	v := View{
		Identity:   c.identity,
		Messages:   c.stream.coll.Clone().Messages,
		Typing:     c.typing.state,
		Input:      c.composer.input,
		Subscribed: c.stream.active(),
		Synced:     c.stream.baseline,
	}
	c.view.Store(&v)
	publishUpdate(c.updates, Update{View: v, Notice: notice})
}
