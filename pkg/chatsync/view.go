package chatsync

import (
	"github.com/go-go-golems/chatsync/pkg/chat"
)

// View is an immutable picture of the client state for rendering.
type View struct {
	Identity   chat.Identity
	Messages   []chat.Message
	Typing     TypingState
	Input      string
	Subscribed bool
	// Synced is set once the first snapshot of the current subscription has arrived.
	Synced bool
}

// ShowPlaceholder reports the "start a conversation" condition: a session with an empty log.
func (v View) ShowPlaceholder() bool {
	return !v.Identity.IsNone() && len(v.Messages) == 0
}

type NoticeKind string

const (
	NoticeStore     NoticeKind = "store"
	NoticeDispatch  NoticeKind = "dispatch"
	NoticeSubscribe NoticeKind = "subscribe"
)

// Notice is a recoverable error surfaced to the user.
type Notice struct {
	Kind NoticeKind
	Err  error
}

func (n Notice) Message() string {
	if n.Err == nil {
		return string(n.Kind)
	}
	return n.Err.Error()
}

type Update struct {
	View   View
	Notice *Notice
}

const updateBuffer = 32

// publishUpdate queues u, dropping the oldest queued update when the consumer lags.
// Only the event loop sends on ch.
func publishUpdate(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
