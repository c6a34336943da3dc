// Package dispatch sends reply requests to the assistant's reply endpoint.
// The reply itself never comes back on this path; it shows up later in the message log.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

const DefaultTimeout = 20 * time.Second

// Request is the body of POST /api/message.
type Request struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

// Accepted is the body of a successful reply request.
type Accepted struct {
	Status string `json:"status"`
}

// Dispatcher fires one reply request. It is never retried.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// HTTPDispatcher posts reply requests to the backend.
type HTTPDispatcher struct {
	endpoint string
	client   *http.Client
	token    func() string
	timeout  time.Duration
}

var _ Dispatcher = &HTTPDispatcher{}

type Option func(*HTTPDispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *HTTPDispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithToken attaches "Authorization: Bearer <token>" when token returns a non-empty value.
func WithToken(token func() string) Option {
	return func(d *HTTPDispatcher) { d.token = token }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *HTTPDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewHTTPDispatcher(baseURL string, opts ...Option) (*HTTPDispatcher, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "dispatcher: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("dispatcher: unsupported scheme %q", u.Scheme)
	}
	d := &HTTPDispatcher{
		endpoint: u.JoinPath("api", "message").String(),
		client:   &http.Client{},
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) error {
	if d == nil {
		return &chat.DispatchError{Err: errors.New("dispatcher is nil")}
	}
	if strings.TrimSpace(req.Text) == "" {
		return &chat.DispatchError{Err: chat.ErrEmptyInput}
	}
	if strings.TrimSpace(req.UserID) == "" {
		return &chat.DispatchError{Err: chat.ErrNoSession}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &chat.DispatchError{Err: errors.Wrap(err, "encode request")}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return &chat.DispatchError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != nil {
		if tok := d.token(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		log.Warn().Err(err).Str("component", "dispatch").Bool("timeout", timedOut).Msg("reply request failed")
		return &chat.DispatchError{Timeout: timedOut, Err: errors.Wrap(err, "reply request")}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Str("component", "dispatch").Int("status", resp.StatusCode).Msg("reply request rejected")
		return &chat.DispatchError{Status: resp.StatusCode, Err: errors.Errorf("rejected: %s", strings.TrimSpace(string(msg)))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	log.Debug().Str("component", "dispatch").Str("user_id", req.UserID).Dur("took", time.Since(start)).Msg("reply request accepted")
	return nil
}
