package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// RemoteOptions configures a RemoteStore.
type RemoteOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// Token returns the bearer token of the current session, or "".
	Token func() string
	// MaxReconnectInterval caps the delay between websocket reconnect attempts.
	MaxReconnectInterval time.Duration
}

// RemoteStore talks to the backend: pushes over HTTP, subscriptions over websocket.
type RemoteStore struct {
	base    *url.URL
	client  *http.Client
	dialer  *websocket.Dialer
	token   func() string
	maxWait time.Duration
}

var _ Store = &RemoteStore{}

func NewRemoteStore(opts RemoteOptions) (*RemoteStore, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "remote store: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("remote store: unsupported scheme %q", u.Scheme)
	}
	rs := &RemoteStore{
		base:    u,
		client:  opts.HTTPClient,
		dialer:  opts.Dialer,
		token:   opts.Token,
		maxWait: opts.MaxReconnectInterval,
	}
	if rs.client == nil {
		rs.client = &http.Client{Timeout: 30 * time.Second}
	}
	if rs.dialer == nil {
		rs.dialer = websocket.DefaultDialer
	}
	if rs.token == nil {
		rs.token = func() string { return "" }
	}
	if rs.maxWait <= 0 {
		rs.maxWait = 10 * time.Second
	}
	return rs, nil
}

func (s *RemoteStore) authHeader() http.Header {
	h := http.Header{}
	if tok := s.token(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

func (s *RemoteStore) Push(ctx context.Context, id chat.Identity, e Entry) (string, error) {
	if err := validIdentity(id); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(PushRequest{Text: e.Text, User: string(e.Author)})
	if err != nil {
		return "", err
	}
	u := s.base.JoinPath("api", "messages", string(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header = s.authHeader()
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "remote store: push")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("remote store: push rejected: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var pr PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", errors.Wrap(err, "remote store: decode push response")
	}
	return pr.Key, nil
}

func (s *RemoteStore) wsURL(id chat.Identity) string {
	u := s.base.JoinPath("ws", "messages", string(id))
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (s *RemoteStore) Subscribe(ctx context.Context, id chat.Identity) (Subscription, error) {
	if err := validIdentity(id); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	rs := &remoteSubscription{
		id:     id,
		out:    make(chan chat.Collection, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go rs.run(runCtx, s)
	return rs, nil
}

type remoteSubscription struct {
	id     chat.Identity
	out    chan chat.Collection
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
}

func (r *remoteSubscription) Identity() chat.Identity { return r.id }

func (r *remoteSubscription) Snapshots() <-chan chat.Collection { return r.out }

func (r *remoteSubscription) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.cancel()
		r.mu.Lock()
		if r.conn != nil {
			_ = r.conn.Close()
		}
		r.mu.Unlock()
		<-r.done
	})
	return nil
}

// setConn records the live connection. A connection that arrives after Close is
// closed right away so readLoop cannot block forever.
func (r *remoteSubscription) setConn(ctx context.Context, c *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c != nil && ctx.Err() != nil {
		_ = c.Close()
		return false
	}
	r.conn = c
	return true
}

func (r *remoteSubscription) run(ctx context.Context, s *RemoteStore) {
	defer close(r.done)
	defer close(r.out)

	logger := log.With().Str("component", "store").Str("identity", string(r.id)).Logger()
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	eb.MaxInterval = s.maxWait
	bo := backoff.WithContext(eb, ctx)

	err := backoff.Retry(func() error {
		conn, resp, err := s.dialer.DialContext(ctx, s.wsURL(r.id), s.authHeader())
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(errors.Errorf("subscribe rejected: %d", resp.StatusCode))
			}
			logger.Warn().Err(err).Msg("subscription: dial failed, retrying")
			return err
		}
		if !r.setConn(ctx, conn) {
			return backoff.Permanent(ctx.Err())
		}
		bo.Reset()
		logger.Debug().Msg("subscription: connected")
		err = r.readLoop(ctx, conn)
		r.setConn(ctx, nil)
		_ = conn.Close()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		logger.Warn().Err(err).Msg("subscription: connection lost, reconnecting")
		return err
	}, bo)
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("subscription: giving up")
	}
}

func (r *remoteSubscription) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		coll, err := DecodeSnapshotFrame(r.id, data)
		if err != nil {
			log.Warn().Err(err).Str("component", "store").Str("identity", string(r.id)).Msg("subscription: dropped frame")
			continue
		}
		if !sendLatest(ctx.Done(), r.out, coll) {
			return ctx.Err()
		}
	}
}
