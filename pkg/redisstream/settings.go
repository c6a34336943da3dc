package redisstream

import (
	"strings"

	"github.com/pkg/errors"
)

// Settings holds Redis Streams transport configuration for log change notifications.
type Settings struct {
	Enabled bool   `yaml:"enabled" glazed:"redis-enabled"`
	Addr    string `yaml:"addr" glazed:"redis-addr"`
	// Prefix namespaces stream keys so several deployments can share one redis.
	Prefix string `yaml:"prefix" glazed:"redis-prefix"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled: false,
		Addr:    "localhost:6379",
		Prefix:  "chatsync",
	}
}

func (s Settings) Validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("redis: addr is required when enabled")
	}
	return nil
}

// StreamKey maps a log topic onto a redis stream key.
func (s Settings) StreamKey(topic string) string {
	if s.Prefix == "" {
		return topic
	}
	return s.Prefix + ":" + topic
}
