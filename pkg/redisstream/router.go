package redisstream

import (
	"context"
	"time"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/logging"
)

// Transport bundles one redis client with the publisher every log writer shares.
type Transport struct {
	settings  Settings
	client    redis.UniversalClient
	publisher message.Publisher
}

// Connect opens the redis client, checks it answers and builds the shared publisher.
func Connect(ctx context.Context, s Settings) (*Transport, error) {
	if !s.Enabled {
		return nil, errors.New("redis transport is disabled")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", s.Addr)
	}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logging.NewWatermill(log.Logger))
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}
	log.Info().Str("component", "redisstream").Str("addr", s.Addr).Msg("connected to redis")
	return &Transport{settings: s, client: client, publisher: pub}, nil
}

func (t *Transport) Settings() Settings { return t.settings }

func (t *Transport) Publisher() message.Publisher {
	if t == nil {
		return nil
	}
	return t.publisher
}

// BuildFanOutSubscriber returns a subscriber without a consumer group, so every
// subscription sees every notification written after it attached.
func (t *Transport) BuildFanOutSubscriber() (message.Subscriber, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("redis transport is not initialized")
	}
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       t.client,
		Unmarshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logging.NewWatermill(log.Logger))
}

func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	var firstErr error
	if t.publisher != nil {
		if err := t.publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
