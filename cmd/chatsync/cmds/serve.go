package cmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/config"
	"github.com/go-go-golems/chatsync/pkg/redisstream"
	"github.com/go-go-golems/chatsync/pkg/server"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = &ServeCommand{}

func NewServeCommand(cfg config.Config) (*ServeCommand, error) {
	serverSection, err := config.NewServerSection(cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "build server section")
	}
	redisSection, err := redisstream.NewParameterLayer(cfg.Server.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "build redis section")
	}
	return &ServeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"serve",
			cmds.WithShort("Run the message-log, auth and reply server"),
			cmds.WithSections(serverSection, redisSection),
		),
	}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	sc, err := config.DecodeServer(parsedLayers)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, sc)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}()

	srv, err := server.New(ctx, b.store, b.accounts, server.Settings{
		Addr:         sc.Addr,
		ReplyDelay:   sc.ReplyDelay,
		ReplyWorkers: sc.ReplyWorkers,
		IdleTimeout:  sc.IdleTimeout,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
