// Package server is the backend the client talks to: the realtime message log over
// HTTP and websocket, email+password auth, and the reply endpoint with its producer.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/auth"
	"github.com/go-go-golems/chatsync/pkg/catalog"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// Settings controls the HTTP server and the reply producer.
type Settings struct {
	Addr         string
	ReplyDelay   time.Duration
	ReplyWorkers int
	// IdleTimeout releases an identity's log subscription after its last websocket left.
	IdleTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Addr:         "127.0.0.1:8080",
		ReplyDelay:   500 * time.Millisecond,
		ReplyWorkers: 8,
		IdleTimeout:  30 * time.Second,
	}
}

type Option func(*Server)

// WithReplyFunc replaces the catalog-aware canned replies.
func WithReplyFunc(f ReplyFunc) Option {
	return func(s *Server) { s.replyFunc = f }
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Server) {
		if c != nil {
			s.catalog = c
		}
	}
}

// Server owns the HTTP handlers, the websocket hub and the reply producer.
type Server struct {
	baseCtx  context.Context
	cancel   context.CancelFunc
	settings Settings

	store    store.Store
	accounts *auth.Accounts
	tokens   *auth.Tokens

	hub       *Hub
	replier   *Replier
	replyFunc ReplyFunc
	catalog   *catalog.Catalog

	mux      *http.ServeMux
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func New(ctx context.Context, st store.Store, accounts *auth.Accounts, settings Settings, opts ...Option) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if st == nil {
		return nil, errors.New("server: store is nil")
	}
	if accounts == nil {
		return nil, errors.New("server: accounts is nil")
	}
	baseCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		baseCtx:  baseCtx,
		cancel:   cancel,
		settings: settings,
		store:    st,
		accounts: accounts,
		tokens:   auth.NewTokens(),
		catalog:  catalog.Default(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	for _, o := range opts {
		o(s)
	}
	if s.replyFunc == nil {
		s.replyFunc = CatalogReply(s.catalog)
	}
	s.hub = NewHub(baseCtx, st, settings.IdleTimeout)
	s.replier = NewReplier(baseCtx, st, s.replyFunc, settings.ReplyDelay, settings.ReplyWorkers)
	s.registerHTTPHandlers()

	s.httpSrv = &http.Server{
		Addr:              settings.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Hub() *Hub { return s.hub }

// Close stops the reply producer and releases every watched log.
// Serve calls it on shutdown; callers mounting Handler themselves call it directly.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.hub.Close()
	s.replier.Wait()
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.settings.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		<-srvCtx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		if err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		s.Close()
		log.Info().Msg("server shutdown complete")
		return err
	})

	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting chatsync server")
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}
