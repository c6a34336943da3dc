package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/catalog"
	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// ReplyFunc produces the assistant's answer to a user message.
type ReplyFunc func(text string) string

func isGreeting(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, greeting := range []string{"hello", "hi", "hey"} {
		if lower == greeting || strings.HasPrefix(lower, greeting+" ") || strings.HasPrefix(lower, greeting+",") || strings.HasPrefix(lower, greeting+"!") {
			return true
		}
	}
	return false
}

// CannedReply answers greetings with an offer to help and echoes everything else.
func CannedReply(text string) string {
	if isGreeting(text) {
		return "Hi, how can I help?"
	}
	return fmt.Sprintf("You said: %s", strings.TrimSpace(text))
}

// CatalogReply answers product questions from c and falls back to CannedReply.
func CatalogReply(c *catalog.Catalog) ReplyFunc {
	return func(text string) string {
		if isGreeting(text) {
			return CannedReply(text)
		}
		if answer, ok := c.Answer(text); ok {
			return answer
		}
		return CannedReply(text)
	}
}

// Replier writes bot replies into the log in the background with bounded concurrency.
type Replier struct {
	ctx   context.Context
	store store.Store
	reply ReplyFunc
	delay time.Duration
	eg    errgroup.Group
}

func NewReplier(ctx context.Context, st store.Store, reply ReplyFunc, delay time.Duration, workers int) *Replier {
	if reply == nil {
		reply = CannedReply
	}
	if workers <= 0 {
		workers = 8
	}
	r := &Replier{ctx: ctx, store: st, reply: reply, delay: delay}
	r.eg.SetLimit(workers)
	return r
}

// Enqueue schedules a reply for id. It returns false when every worker is busy.
func (r *Replier) Enqueue(id chat.Identity, text string) bool {
	return r.eg.TryGo(func() error {
		logger := log.With().Str("component", "server").Str("identity", string(id)).Logger()
		if r.delay > 0 {
			t := time.NewTimer(r.delay)
			defer t.Stop()
			select {
			case <-r.ctx.Done():
				return nil
			case <-t.C:
			}
		}
		answer := r.reply(text)
		if strings.TrimSpace(answer) == "" {
			logger.Warn().Msg("replier produced an empty answer")
			return nil
		}
		key, err := r.store.Push(r.ctx, id, store.Entry{Text: answer, Author: chat.AuthorBot})
		if err != nil {
			logger.Error().Err(err).Msg("reply write failed")
			return nil
		}
		logger.Debug().Str("key", key).Msg("reply written")
		return nil
	})
}

// Wait blocks until every scheduled reply has finished.
func (r *Replier) Wait() {
	_ = r.eg.Wait()
}
