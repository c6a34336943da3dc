package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// Hub shares one store subscription per identity between all of its websocket
// connections. An identity without watchers is released after the idle timeout.
type Hub struct {
	baseCtx     context.Context
	store       store.Store
	idleTimeout time.Duration

	mu   sync.Mutex
	logs map[chat.Identity]*hubEntry
}

type hubEntry struct {
	watchers *Watchers
	sub      store.Subscription
	done     chan struct{}
}

func NewHub(ctx context.Context, st store.Store, idleTimeout time.Duration) *Hub {
	return &Hub{
		baseCtx:     ctx,
		store:       st,
		idleTimeout: idleTimeout,
		logs:        map[chat.Identity]*hubEntry{},
	}
}

// Attach adds conn to the identity's watchers, subscribing to the log on first use.
func (h *Hub) Attach(id chat.Identity, conn *websocket.Conn) (*Watchers, error) {
	if h == nil {
		return nil, errors.New("hub is nil")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.logs[id]
	if !ok {
		sub, err := h.store.Subscribe(h.baseCtx, id)
		if err != nil {
			return nil, errors.Wrap(err, "hub: subscribe")
		}
		e = &hubEntry{sub: sub, done: make(chan struct{})}
		e.watchers = newWatchers(id, h.idleTimeout, func() { h.evict(id, e) })
		h.logs[id] = e
		go h.pump(id, e)
		log.Debug().Str("component", "server").Str("identity", string(id)).Msg("hub: watching log")
	}
	if !e.watchers.Join(conn) {
		return nil, errors.New("hub: identity is shutting down")
	}
	return e.watchers, nil
}

// pump turns snapshots into frames for the watchers.
func (h *Hub) pump(id chat.Identity, e *hubEntry) {
	defer close(e.done)
	for coll := range e.sub.Snapshots() {
		frame, err := store.EncodeSnapshotFrame(coll)
		if err != nil {
			log.Warn().Err(err).Str("component", "server").Str("identity", string(id)).Msg("hub: encode snapshot failed")
			continue
		}
		e.watchers.Publish(frame)
	}
}

func (h *Hub) evict(id chat.Identity, e *hubEntry) {
	h.mu.Lock()
	if cur, ok := h.logs[id]; !ok || cur != e || e.watchers.Len() > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.logs, id)
	h.mu.Unlock()
	h.release(id, e)
}

func (h *Hub) release(id chat.Identity, e *hubEntry) {
	e.watchers.Shutdown()
	if err := e.sub.Close(); err != nil {
		log.Warn().Err(err).Str("component", "server").Str("identity", string(id)).Msg("hub: subscription close failed")
	}
	<-e.done
	log.Debug().Str("component", "server").Str("identity", string(id)).Msg("hub: log released")
}

// Count returns the number of identities currently watched.
func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.logs)
}

// Close releases every identity and its subscription.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	entries := h.logs
	h.logs = map[chat.Identity]*hubEntry{}
	h.mu.Unlock()
	for id, e := range entries {
		h.release(id, e)
	}
}
