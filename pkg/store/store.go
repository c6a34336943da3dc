// Package store implements the realtime per-identity message log: an ordered append log
// addressed as messages/{identity}, written with Push and read with full-value Subscribe.
package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// Entry is what a writer supplies; the store adds the key and the timestamp.
type Entry struct {
	Text   string
	Author chat.Author
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return errors.New("entry text is empty")
	}
	if _, err := chat.ParseAuthor(string(e.Author)); err != nil {
		return err
	}
	return nil
}

// Store is the realtime log seen by the client.
type Store interface {
	// Push appends e to the identity's log and returns the server-assigned key.
	Push(ctx context.Context, id chat.Identity, e Entry) (string, error)
	// Subscribe attaches to the identity's log. The first snapshot is the current value;
	// every later change delivers the complete value again.
	Subscribe(ctx context.Context, id chat.Identity) (Subscription, error)
}

// Subscription is an exclusively owned handle on one identity's snapshot stream.
// Close must be called to release it; it is safe to call more than once.
type Subscription interface {
	Identity() chat.Identity
	Snapshots() <-chan chat.Collection
	Close() error
}

// Record is one stored log entry with its raw JSON value.
type Record struct {
	Key         string
	Seq         int64
	Value       []byte
	CreatedAtMs int64
}

// Backend persists log records in append order.
type Backend interface {
	Append(ctx context.Context, path string, rec Record) (Record, error)
	Load(ctx context.Context, path string) ([]Record, error)
	Close() error
}

// NewPushKey returns a time-ordered key, so lexical order follows append order.
func NewPushKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate push key")
	}
	return id.String(), nil
}

// topicForPath computes the notification topic for a log path.
func topicForPath(path string) string {
	return strings.ReplaceAll(path, "/", ":")
}

func validIdentity(id chat.Identity) error {
	if id.IsNone() {
		return chat.ErrNoSession
	}
	if strings.ContainsAny(string(id), "/:") {
		return errors.Errorf("invalid identity %q", id)
	}
	return nil
}
