package chatsync

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// composer holds the input buffer and numbers accepted submissions.
type composer struct {
	input  string
	ticket uint64
	// last is the latest accepted submission of this session.
	last submission
}

// submission identifies a user message in the log: by key once stored, by text before.
type submission struct {
	text string
	key  string
}

func (c *composer) reset() {
	c.input = ""
	c.last = submission{}
}

type submitRequest struct {
	raw   string
	reply chan error
}

type setInputRequest struct {
	text string
}

type appendFinished struct {
	epoch, ticket uint64
	identity      chat.Identity
	key           string
	err           error
}

type dispatchFinished struct {
	epoch, ticket uint64
	err           error
}

type replyTimeout struct {
	epoch, ticket uint64
}

// Submit sends raw as a user message. Empty input returns chat.ErrEmptyInput and no
// session returns chat.ErrNoSession; both leave every state untouched. On acceptance
// the input buffer is already empty when Submit returns, while the write and the
// reply request complete in the background.
func (c *Client) Submit(ctx context.Context, raw string) error {
	req := submitRequest{raw: raw, reply: make(chan error, 1)}
	if !c.post(ctx, req) {
		return errors.New("chatsync: client is not running")
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("chatsync: client stopped")
	}
}

// SetInput mirrors the UI's input field into the client's buffer.
func (c *Client) SetInput(ctx context.Context, text string) {
	c.post(ctx, setInputRequest{text: text})
}

func (c *Client) onSubmit(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return chat.ErrEmptyInput
	}
	if c.identity.IsNone() {
		return chat.ErrNoSession
	}

	c.composer.input = ""
	c.composer.ticket++
	c.composer.last = submission{text: text}
	epoch, ticket, id := c.stream.epoch, c.composer.ticket, c.identity
	c.fire(submitAccepted)
	c.armTimer(epoch, ticket)

	log.Debug().Str("component", "chatsync").Str("identity", string(id)).Uint64("ticket", ticket).Msg("submission accepted")

	// the write and the reply request run independently; neither waits for the other
	c.ops.Add(2)
	go func() {
		defer c.ops.Done()
		opCtx, cancel := context.WithTimeout(ctx, c.appendTimeout)
		defer cancel()
		key, err := c.stream.store.Push(opCtx, id, store.Entry{Text: text, Author: chat.AuthorUser})
		if err != nil {
			err = &chat.StoreWriteError{Path: chat.LogPath(id), Err: err}
		}
		c.post(ctx, appendFinished{epoch: epoch, ticket: ticket, identity: id, key: key, err: err})
	}()
	go func() {
		defer c.ops.Done()
		opCtx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
		defer cancel()
		err := c.dispatcher.Dispatch(opCtx, dispatch.Request{Text: text, UserID: string(id)})
		if err != nil {
			var de *chat.DispatchError
			if !errors.As(err, &de) {
				err = &chat.DispatchError{Timeout: errors.Is(opCtx.Err(), context.DeadlineExceeded), Err: err}
			}
		}
		c.post(ctx, dispatchFinished{epoch: epoch, ticket: ticket, err: err})
	}()

	c.publish(nil)
	return nil
}

// current reports whether a completion belongs to the latest submission of this session.
func (c *Client) current(epoch, ticket uint64) bool {
	return epoch == c.stream.epoch && ticket == c.composer.ticket
}

func (c *Client) onAppendFinished(ev appendFinished) {
	logger := log.With().Str("component", "chatsync").Str("identity", string(ev.identity)).Uint64("ticket", ev.ticket).Logger()
	if ev.err == nil {
		logger.Debug().Str("key", ev.key).Msg("message stored")
		if c.current(ev.epoch, ev.ticket) {
			c.composer.last.key = ev.key
		}
		return
	}
	logger.Warn().Err(ev.err).Msg("message write failed")
	if ev.epoch != c.stream.epoch {
		return
	}
	if c.current(ev.epoch, ev.ticket) && c.fire(appendFailed) {
		c.stopTimer()
	}
	c.publish(&Notice{Kind: NoticeStore, Err: ev.err})
}

func (c *Client) onDispatchFinished(ev dispatchFinished) {
	logger := log.With().Str("component", "chatsync").Uint64("ticket", ev.ticket).Logger()
	if ev.err == nil {
		logger.Debug().Msg("reply requested")
		return
	}
	logger.Warn().Err(ev.err).Msg("reply request failed")
	if ev.epoch != c.stream.epoch {
		return
	}
	if c.current(ev.epoch, ev.ticket) && c.fire(dispatchFailed) {
		c.stopTimer()
	}
	c.publish(&Notice{Kind: NoticeDispatch, Err: ev.err})
}

func (c *Client) onReplyTimeout(ev replyTimeout) {
	if !c.current(ev.epoch, ev.ticket) || c.typing.state != TypingPending {
		return
	}
	c.timer = nil
	c.fire(replyTimedOut)
	err := &chat.DispatchError{Timeout: true, Err: errors.Errorf("assistant did not reply within %s", c.replyTimeout)}
	log.Warn().Err(err).Str("component", "chatsync").Uint64("ticket", ev.ticket).Msg("reply timed out")
	c.publish(&Notice{Kind: NoticeDispatch, Err: err})
}
