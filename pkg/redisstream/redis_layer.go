package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const SectionSlug = "redis"

// NewParameterLayer returns the redis section, seeded with defaults (usually the config file).
func NewParameterLayer(defaults Settings) (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Redis Streams change notifications",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool,
				fields.WithDefault(defaults.Enabled),
				fields.WithHelp("Fan message log changes out over Redis Streams")),
			fields.New("redis-addr", fields.TypeString,
				fields.WithDefault(defaults.Addr),
				fields.WithHelp("Redis address host:port")),
			fields.New("redis-prefix", fields.TypeString,
				fields.WithDefault(defaults.Prefix),
				fields.WithHelp("Prefix for stream keys")),
		),
	)
}
