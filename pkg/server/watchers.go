package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

const writeWait = 10 * time.Second

// Watchers is the set of websockets following one identity's log. It remembers the
// latest snapshot frame so a socket joining late starts from the current value.
// Once the set stays empty for the grace period, onIdle runs.
type Watchers struct {
	identity chat.Identity
	grace    time.Duration
	onIdle   func()

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
	latest  []byte
	// idleGen invalidates idle callbacks scheduled before the last join or leave.
	idleGen uint64
	closed  bool
}

func newWatchers(id chat.Identity, grace time.Duration, onIdle func()) *Watchers {
	return &Watchers{
		identity: id,
		grace:    grace,
		onIdle:   onIdle,
		sockets:  map[*websocket.Conn]struct{}{},
	}
}

// Join adds conn and sends it the latest snapshot, if one was published already.
func (w *Watchers) Join(conn *websocket.Conn) bool {
	if w == nil || conn == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.sockets[conn] = struct{}{}
	w.idleGen++
	if w.latest != nil {
		w.sendLocked(conn, w.latest)
	}
	return true
}

// Leave removes conn, closes it, and starts the grace period when it was the last one.
func (w *Watchers) Leave(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	defer func() { _ = conn.Close() }()
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sockets[conn]; !ok {
		return
	}
	delete(w.sockets, conn)
	w.armIdleLocked()
}

// Publish records frame as the latest snapshot and writes it to every socket.
func (w *Watchers) Publish(frame []byte) {
	if w == nil || len(frame) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = frame
	for conn := range w.sockets {
		w.sendLocked(conn, frame)
	}
}

func (w *Watchers) sendLocked(conn *websocket.Conn, frame []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteMessage(websocket.TextMessage, frame)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("component", "server").Str("identity", string(w.identity)).Msg("dropping websocket after failed write")
	delete(w.sockets, conn)
	_ = conn.Close()
	w.armIdleLocked()
}

func (w *Watchers) armIdleLocked() {
	if len(w.sockets) > 0 || w.closed || w.onIdle == nil || w.grace <= 0 {
		return
	}
	w.idleGen++
	gen := w.idleGen
	time.AfterFunc(w.grace, func() {
		w.mu.Lock()
		fire := !w.closed && len(w.sockets) == 0 && w.idleGen == gen
		w.mu.Unlock()
		if fire {
			w.onIdle()
		}
	})
}

func (w *Watchers) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sockets)
}

// Shutdown closes every socket; later joins are refused.
func (w *Watchers) Shutdown() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for conn := range w.sockets {
		_ = conn.Close()
	}
	clear(w.sockets)
}
