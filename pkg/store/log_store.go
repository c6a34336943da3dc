package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// LogStore is the server-side Store: records live in a Backend and every append
// publishes a change notification on the StreamBackend.
type LogStore struct {
	backend Backend
	streams StreamBackend
	now     func() time.Time
}

var _ Store = &LogStore{}

type changeNotice struct {
	Path string `json:"path"`
	Key  string `json:"key"`
	Seq  int64  `json:"seq"`
}

func NewLogStore(backend Backend, streams StreamBackend) (*LogStore, error) {
	if backend == nil {
		return nil, errors.New("log store: backend is nil")
	}
	if streams == nil {
		return nil, errors.New("log store: stream backend is nil")
	}
	return &LogStore{backend: backend, streams: streams, now: time.Now}, nil
}

func (s *LogStore) Push(ctx context.Context, id chat.Identity, e Entry) (string, error) {
	if s == nil {
		return "", errors.New("log store: nil store")
	}
	if err := validIdentity(id); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	key, err := NewPushKey()
	if err != nil {
		return "", err
	}
	ts := s.now().UnixMilli()
	value, err := chat.EncodeEntry(e.Text, e.Author, ts)
	if err != nil {
		return "", errors.Wrap(err, "log store: encode entry")
	}
	path := chat.LogPath(id)
	rec, err := s.backend.Append(ctx, path, Record{Key: key, Value: value, CreatedAtMs: ts})
	if err != nil {
		return "", err
	}
	s.notify(path, rec)
	return key, nil
}

// notify is best effort: the record is durable, and a lost notice only delays
// subscribers until the next change.
func (s *LogStore) notify(path string, rec Record) {
	payload, err := json.Marshal(changeNotice{Path: path, Key: rec.Key, Seq: rec.Seq})
	if err != nil {
		return
	}
	pub := s.streams.Publisher()
	if pub == nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(s.streams.Topic(path), msg); err != nil {
		log.Warn().Err(err).Str("component", "store").Str("path", path).Msg("change notification failed")
	}
}

// Load returns the current validated collection for id.
func (s *LogStore) Load(ctx context.Context, id chat.Identity) (chat.Collection, error) {
	if s == nil {
		return chat.Collection{}, errors.New("log store: nil store")
	}
	if err := validIdentity(id); err != nil {
		return chat.Collection{}, err
	}
	recs, err := s.backend.Load(ctx, chat.LogPath(id))
	if err != nil {
		return chat.Collection{}, err
	}
	return collectionFromRecords(id, recs), nil
}

func (s *LogStore) Subscribe(ctx context.Context, id chat.Identity) (Subscription, error) {
	if s == nil {
		return nil, errors.New("log store: nil store")
	}
	if err := validIdentity(id); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub, owned, err := s.streams.BuildSubscriber()
	if err != nil {
		return nil, errors.Wrap(err, "log store: build subscriber")
	}
	runCtx, cancel := context.WithCancel(ctx)
	path := chat.LogPath(id)
	// attach before the first load so no append can fall between the two
	ch, err := sub.Subscribe(runCtx, s.streams.Topic(path))
	if err != nil {
		cancel()
		if owned {
			_ = sub.Close()
		}
		return nil, errors.Wrap(err, "log store: subscribe")
	}
	ls := newLogSubscription(id, cancel, func() error {
		if owned {
			return sub.Close()
		}
		return nil
	})
	go ls.run(runCtx, ch, func(ctx context.Context) (chat.Collection, error) {
		return s.Load(ctx, id)
	})
	return ls, nil
}

func (s *LogStore) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if err := s.streams.Close(); err != nil {
		firstErr = err
	}
	if err := s.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// collectionFromRecords validates every record; malformed ones are quarantined.
func collectionFromRecords(id chat.Identity, recs []Record) chat.Collection {
	coll := chat.Collection{Identity: id, Messages: make([]chat.Message, 0, len(recs))}
	for _, rec := range recs {
		m, err := chat.DecodeEntry(rec.Key, rec.Value)
		if err != nil {
			log.Warn().Err(err).Str("component", "store").Str("identity", string(id)).Str("key", rec.Key).Msg("quarantined malformed entry")
			continue
		}
		if m.Timestamp == 0 {
			m.Timestamp = rec.CreatedAtMs
		}
		coll.Messages = append(coll.Messages, m)
	}
	return coll
}
