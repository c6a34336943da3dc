package config

import (
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/redisstream"
)

const (
	ClientSlug = "client"
	ServerSlug = "server"
)

// ClientSettings is the client section as parsed from defaults, CHATSYNC_* and flags.
// Durations stay strings until ClientConfig converts them.
type ClientSettings struct {
	ServerURL       string `glazed:"server-url"`
	ReplyTimeout    string `glazed:"reply-timeout"`
	DispatchTimeout string `glazed:"dispatch-timeout"`
	AppendTimeout   string `glazed:"append-timeout"`
}

type ServerSettings struct {
	Addr         string `glazed:"addr"`
	DBPath       string `glazed:"db-path"`
	ReplyDelay   string `glazed:"reply-delay"`
	ReplyWorkers int    `glazed:"reply-workers"`
	IdleTimeout  string `glazed:"idle-timeout"`
}

func NewClientSection(defaults ClientConfig) (schema.Section, error) {
	return schema.NewSection(
		ClientSlug,
		"Chat client settings",
		schema.WithFields(
			fields.New("server-url", fields.TypeString,
				fields.WithDefault(defaults.ServerURL),
				fields.WithHelp("Server base URL")),
			fields.New("reply-timeout", fields.TypeString,
				fields.WithDefault(defaults.ReplyTimeout.String()),
				fields.WithHelp("How long to show the typing indicator without a reply")),
			fields.New("dispatch-timeout", fields.TypeString,
				fields.WithDefault(defaults.DispatchTimeout.String()),
				fields.WithHelp("Timeout for the reply request")),
			fields.New("append-timeout", fields.TypeString,
				fields.WithDefault(defaults.AppendTimeout.String()),
				fields.WithHelp("Timeout for writing a message to the log")),
		),
	)
}

func NewServerSection(defaults ServerConfig) (schema.Section, error) {
	return schema.NewSection(
		ServerSlug,
		"Message log server settings",
		schema.WithFields(
			fields.New("addr", fields.TypeString,
				fields.WithDefault(defaults.Addr),
				fields.WithHelp("Listen address")),
			fields.New("db-path", fields.TypeString,
				fields.WithDefault(defaults.DBPath),
				fields.WithHelp("sqlite database file; empty keeps messages and accounts in memory")),
			fields.New("reply-delay", fields.TypeString,
				fields.WithDefault(defaults.ReplyDelay.String()),
				fields.WithHelp("Delay before the bot reply is appended")),
			fields.New("reply-workers", fields.TypeInteger,
				fields.WithDefault(defaults.ReplyWorkers),
				fields.WithHelp("Maximum concurrent reply jobs")),
			fields.New("idle-timeout", fields.TypeString,
				fields.WithDefault(defaults.IdleTimeout.String()),
				fields.WithHelp("How long an unwatched log subscription is kept open")),
		),
	)
}

// Sections builds the client, server and redis sections seeded from cfg.
func Sections(cfg Config) ([]schema.Section, error) {
	client, err := NewClientSection(cfg.Client)
	if err != nil {
		return nil, errors.Wrap(err, "client section")
	}
	server, err := NewServerSection(cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "server section")
	}
	redis, err := redisstream.NewParameterLayer(cfg.Server.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "redis section")
	}
	return []schema.Section{client, server, redis}, nil
}

func (s ClientSettings) Config() (ClientConfig, error) {
	cc := ClientConfig{ServerURL: strings.TrimSpace(s.ServerURL)}
	var err error
	if cc.ReplyTimeout, err = parseDuration("reply-timeout", s.ReplyTimeout); err != nil {
		return ClientConfig{}, err
	}
	if cc.DispatchTimeout, err = parseDuration("dispatch-timeout", s.DispatchTimeout); err != nil {
		return ClientConfig{}, err
	}
	if cc.AppendTimeout, err = parseDuration("append-timeout", s.AppendTimeout); err != nil {
		return ClientConfig{}, err
	}
	return cc, nil
}

func (s ServerSettings) Config(redis redisstream.Settings) (ServerConfig, error) {
	sc := ServerConfig{
		Addr:         strings.TrimSpace(s.Addr),
		DBPath:       strings.TrimSpace(s.DBPath),
		ReplyWorkers: s.ReplyWorkers,
		Redis:        redis,
	}
	var err error
	if sc.ReplyDelay, err = parseDuration("reply-delay", s.ReplyDelay); err != nil {
		return ServerConfig{}, err
	}
	if sc.IdleTimeout, err = parseDuration("idle-timeout", s.IdleTimeout); err != nil {
		return ServerConfig{}, err
	}
	return sc, nil
}

// DecodeClient reads the client section and validates it.
func DecodeClient(parsed *values.Values) (ClientConfig, error) {
	s := ClientSettings{}
	if err := parsed.DecodeSectionInto(ClientSlug, &s); err != nil {
		return ClientConfig{}, errors.Wrap(err, "decode client settings")
	}
	cc, err := s.Config()
	if err != nil {
		return ClientConfig{}, err
	}
	if err := cc.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cc, nil
}

// DecodeServer reads the server and redis sections and validates them.
func DecodeServer(parsed *values.Values) (ServerConfig, error) {
	s := ServerSettings{}
	if err := parsed.DecodeSectionInto(ServerSlug, &s); err != nil {
		return ServerConfig{}, errors.Wrap(err, "decode server settings")
	}
	rs := redisstream.Settings{}
	if err := parsed.DecodeSectionInto(redisstream.SectionSlug, &rs); err != nil {
		return ServerConfig{}, errors.Wrap(err, "decode redis settings")
	}
	sc, err := s.Config(rs)
	if err != nil {
		return ServerConfig{}, err
	}
	if err := sc.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return sc, nil
}

func parseDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "%s", name)
	}
	return d, nil
}
