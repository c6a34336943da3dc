package store

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/logging"
	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

// StreamBackend carries "log changed" notifications between writers and subscriptions,
// in-process or across processes.
type StreamBackend interface {
	Publisher() message.Publisher
	// BuildSubscriber returns a subscriber for one subscription. owned reports whether the
	// caller must close it when done.
	BuildSubscriber() (sub message.Subscriber, owned bool, err error)
	Topic(path string) string
	Close() error
}

type goChannelStreamBackend struct {
	pubsub *gochannel.GoChannel
}

// NewInMemoryStreamBackend fans notifications out within one process.
func NewInMemoryStreamBackend() StreamBackend {
	return &goChannelStreamBackend{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 16,
		}, logging.NewWatermill(log.Logger)),
	}
}

func (b *goChannelStreamBackend) Publisher() message.Publisher {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub
}

func (b *goChannelStreamBackend) BuildSubscriber() (message.Subscriber, bool, error) {
	if b == nil || b.pubsub == nil {
		return nil, false, errors.New("stream backend is not initialized")
	}
	return b.pubsub, false, nil
}

func (b *goChannelStreamBackend) Topic(path string) string { return topicForPath(path) }

func (b *goChannelStreamBackend) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}

type redisStreamBackend struct {
	transport *redisstream.Transport
}

// NewRedisStreamBackend shares notifications through redis streams, one fan-out
// subscriber per subscription.
func NewRedisStreamBackend(t *redisstream.Transport) (StreamBackend, error) {
	if t == nil {
		return nil, errors.New("redis transport is nil")
	}
	return &redisStreamBackend{transport: t}, nil
}

func (b *redisStreamBackend) Publisher() message.Publisher { return b.transport.Publisher() }

func (b *redisStreamBackend) BuildSubscriber() (message.Subscriber, bool, error) {
	sub, err := b.transport.BuildFanOutSubscriber()
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func (b *redisStreamBackend) Topic(path string) string {
	return b.transport.Settings().StreamKey(topicForPath(path))
}

func (b *redisStreamBackend) Close() error { return b.transport.Close() }
