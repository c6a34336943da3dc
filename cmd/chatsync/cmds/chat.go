package cmds

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/auth"
	"github.com/go-go-golems/chatsync/pkg/chatsync"
	"github.com/go-go-golems/chatsync/pkg/config"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/logging"
	"github.com/go-go-golems/chatsync/pkg/server"
	"github.com/go-go-golems/chatsync/pkg/store"
	"github.com/go-go-golems/chatsync/pkg/ui"
)

type ChatCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = &ChatCommand{}

type ChatSettings struct {
	Embedded  bool   `glazed:"embedded"`
	UILogFile string `glazed:"ui-log-file"`
}

func NewChatCommand(cfg config.Config) (*ChatCommand, error) {
	sections, err := config.Sections(cfg)
	if err != nil {
		return nil, err
	}
	return &ChatCommand{
		CommandDescription: cmds.NewCommandDescription(
			"chat",
			cmds.WithShort("Open the terminal chat client"),
			cmds.WithFlags(
				fields.New("embedded", fields.TypeBool,
					fields.WithHelp("Run an in-memory server in-process instead of connecting to one"),
					fields.WithDefault(false)),
				fields.New("ui-log-file", fields.TypeString,
					fields.WithHelp("Log file used while the UI owns the terminal"),
					fields.WithDefault(defaultChatLogFile())),
			),
			cmds.WithSections(sections...),
		),
	}, nil
}

func (c *ChatCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &ChatSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	cc, err := config.DecodeClient(parsedLayers)
	if err != nil {
		return err
	}
	var sc config.ServerConfig
	if s.Embedded {
		if sc, err = config.DecodeServer(parsedLayers); err != nil {
			return err
		}
	}

	// the terminal belongs to the UI
	if err := os.MkdirAll(filepath.Dir(s.UILogFile), 0o755); err != nil {
		return errors.Wrap(err, "create ui log directory")
	}
	closer, err := logging.Init(logging.Settings{
		Level:      zerolog.GlobalLevel().String(),
		File:       s.UILogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if s.Embedded {
		url, err := startEmbeddedServer(ctx, eg, sc)
		if err != nil {
			return err
		}
		cc.ServerURL = url
	}

	err = runChat(ctx, eg, cc)
	cancel()
	if werr := eg.Wait(); werr != nil && !errors.Is(werr, context.Canceled) && err == nil {
		err = werr
	}
	return err
}

func defaultChatLogFile() string {
	dir := filepath.Dir(config.DefaultPath())
	if dir == "." || dir == "" {
		return filepath.Join(os.TempDir(), "chatsync-chat.log")
	}
	return filepath.Join(dir, "chat.log")
}

func startEmbeddedServer(ctx context.Context, eg *errgroup.Group, sc config.ServerConfig) (string, error) {
	sc.DBPath = ""
	sc.Redis.Enabled = false
	b, err := openBackend(ctx, sc)
	if err != nil {
		return "", err
	}
	srv, err := server.New(ctx, b.store, b.accounts, server.Settings{
		ReplyDelay:   sc.ReplyDelay,
		ReplyWorkers: sc.ReplyWorkers,
		IdleTimeout:  sc.IdleTimeout,
	})
	if err != nil {
		_ = b.Close()
		return "", err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = b.Close()
		return "", errors.Wrap(err, "listen for embedded server")
	}
	eg.Go(func() error {
		defer func() { _ = b.Close() }()
		return srv.Serve(ctx, ln)
	})
	url := "http://" + ln.Addr().String()
	log.Info().Str("component", "chat").Str("url", url).Msg("embedded server started")
	return url, nil
}

func runChat(ctx context.Context, eg *errgroup.Group, cc config.ClientConfig) error {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	provider, err := auth.NewHTTPProvider(cc.ServerURL, httpClient)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionManager(provider)
	if err != nil {
		return err
	}
	rs, err := store.NewRemoteStore(store.RemoteOptions{BaseURL: cc.ServerURL, Token: provider.Token})
	if err != nil {
		return err
	}
	d, err := dispatch.NewHTTPDispatcher(cc.ServerURL,
		dispatch.WithToken(provider.Token),
		dispatch.WithTimeout(cc.DispatchTimeout),
	)
	if err != nil {
		return err
	}
	client, err := chatsync.New(rs, d, sessions,
		chatsync.WithReplyTimeout(cc.ReplyTimeout),
		chatsync.WithDispatchTimeout(cc.DispatchTimeout),
		chatsync.WithAppendTimeout(cc.AppendTimeout),
	)
	if err != nil {
		return err
	}

	eg.Go(func() error { return sessions.Run(ctx) })
	eg.Go(func() error { return client.Run(ctx) })

	log.Info().Str("component", "chat").Str("server", cc.ServerURL).Msg("starting chat ui")
	return ui.Run(ctx, ui.NewModel(ctx, client, sessions))
}
