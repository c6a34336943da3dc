package store

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one websocket message of a log subscription.
type Frame struct {
	Type    string      `json:"type"`
	Path    string      `json:"path,omitempty"`
	Entries []WireEntry `json:"entries,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WireEntry carries a key and the stored value untouched; it is validated on arrival.
type WireEntry struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

type PushRequest struct {
	Text string `json:"text"`
	User string `json:"user"`
}

type PushResponse struct {
	Key string `json:"key"`
}

func EncodeSnapshotFrame(coll chat.Collection) ([]byte, error) {
	f := Frame{
		Type:    FrameSnapshot,
		Path:    chat.LogPath(coll.Identity),
		Entries: make([]WireEntry, 0, len(coll.Messages)),
	}
	for _, m := range coll.Messages {
		v, err := chat.EncodeEntry(m.Text, m.Author, m.Timestamp)
		if err != nil {
			return nil, errors.Wrapf(err, "encode entry %s", m.ID)
		}
		f.Entries = append(f.Entries, WireEntry{ID: m.ID, Value: v})
	}
	return json.Marshal(f)
}

func EncodeErrorFrame(msg string) []byte {
	b, _ := json.Marshal(Frame{Type: FrameError, Error: msg})
	return b
}

// DecodeSnapshotFrame validates a snapshot frame for the expected identity.
// Malformed entries are dropped; a frame for another path is rejected whole.
func DecodeSnapshotFrame(expected chat.Identity, b []byte) (chat.Collection, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return chat.Collection{}, errors.Wrap(err, "decode frame")
	}
	switch f.Type {
	case FrameSnapshot:
	case FrameError:
		return chat.Collection{}, errors.Errorf("server error: %s", f.Error)
	default:
		return chat.Collection{}, errors.Errorf("unexpected frame type %q", f.Type)
	}
	if strings.TrimSpace(f.Path) != chat.LogPath(expected) {
		return chat.Collection{}, errors.Errorf("snapshot for %q while subscribed to %q", f.Path, chat.LogPath(expected))
	}
	coll := chat.Collection{Identity: expected, Messages: make([]chat.Message, 0, len(f.Entries))}
	for _, e := range f.Entries {
		m, err := chat.DecodeEntry(e.ID, e.Value)
		if err != nil {
			log.Warn().Err(err).Str("component", "store").Str("identity", string(expected)).Msg("quarantined malformed wire entry")
			continue
		}
		coll.Messages = append(coll.Messages, m)
	}
	return coll, nil
}

// sendLatest delivers coll on a 1-slot channel, replacing an undelivered older snapshot.
func sendLatest(done <-chan struct{}, out chan chat.Collection, coll chat.Collection) bool {
	select {
	case out <- coll:
		return true
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- coll:
		return true
	case <-done:
		return false
	}
}
