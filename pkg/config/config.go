// Package config holds chatsync settings. A YAML file provides the defaults of the
// glazed client, server and redis sections; CHATSYNC_* variables and flags override them.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

// EnvPrefix is the glazed env source prefix: server-url reads CHATSYNC_SERVER_URL.
const EnvPrefix = "CHATSYNC"

type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
}

type ClientConfig struct {
	ServerURL       string        `yaml:"server_url"`
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	AppendTimeout   time.Duration `yaml:"append_timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// DBPath selects the sqlite store; empty keeps everything in memory.
	DBPath       string               `yaml:"db_path"`
	ReplyDelay   time.Duration        `yaml:"reply_delay"`
	ReplyWorkers int                  `yaml:"reply_workers"`
	IdleTimeout  time.Duration        `yaml:"idle_timeout"`
	Redis        redisstream.Settings `yaml:"redis"`
}

func Default() Config {
	return Config{
		Client: ClientConfig{
			ServerURL:       "http://127.0.0.1:8080",
			ReplyTimeout:    45 * time.Second,
			DispatchTimeout: 20 * time.Second,
			AppendTimeout:   10 * time.Second,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReplyDelay:   500 * time.Millisecond,
			ReplyWorkers: 8,
			IdleTimeout:  30 * time.Second,
			Redis:        redisstream.DefaultSettings(),
		},
	}
}

// DefaultPath is $HOME/.chatsync/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chatsync", "config.yaml")
}

// Load reads path over the built-in defaults. The result seeds the defaults of the
// command sections, so CHATSYNC_* variables and flags still override it. A missing
// file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err) && !required:
		return cfg, nil
	default:
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

func (c ClientConfig) Validate() error {
	if c.ReplyTimeout <= 0 {
		return errors.New("client reply-timeout must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return errors.New("client dispatch-timeout must be positive")
	}
	if c.AppendTimeout <= 0 {
		return errors.New("client append-timeout must be positive")
	}
	return nil
}

func (c ServerConfig) Validate() error {
	if c.ReplyDelay < 0 {
		return errors.New("server reply-delay must not be negative")
	}
	if c.ReplyWorkers <= 0 {
		return errors.New("server reply-workers must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("server idle-timeout must be positive")
	}
	return c.Redis.Validate()
}
