package auth

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

// Credentials is the body of the sign-up and sign-in endpoints.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by a successful sign-up or sign-in.
type SessionResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// ErrorResponse is the JSON error body of the backend.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// HTTPProvider authenticates against the backend auth endpoints and keeps the
// issued bearer token for the other remote adapters.
type HTTPProvider struct {
	base   *url.URL
	client *http.Client
	state  *sessionState
}

var (
	_ Provider    = &HTTPProvider{}
	_ TokenSource = &HTTPProvider{}
)

func NewHTTPProvider(baseURL string, client *http.Client) (*HTTPProvider, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "http provider: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("http provider: unsupported scheme %q", u.Scheme)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{base: u, client: client, state: newSessionState()}, nil
}

func (p *HTTPProvider) Token() string {
	if p == nil {
		return ""
	}
	_, tok := p.state.current()
	return tok
}

func (p *HTTPProvider) Changes() <-chan chat.Identity { return p.state.changes }

func (p *HTTPProvider) SignUp(ctx context.Context, email, password string) (chat.Identity, error) {
	return p.authenticate(ctx, "signup", email, password)
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (chat.Identity, error) {
	return p.authenticate(ctx, "signin", email, password)
}

// SignOut always ends the local session; revoking the token on the backend is best effort.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	_, tok := p.state.current()
	p.state.set(chat.NoIdentity, "")
	if tok == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base.JoinPath("api", "auth", "signout").String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := p.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("component", "auth").Msg("token revocation failed")
		return nil
	}
	_ = resp.Body.Close()
	return nil
}

func (p *HTTPProvider) authenticate(ctx context.Context, op, email, password string) (chat.Identity, error) {
	body, err := json.Marshal(Credentials{Email: email, Password: password})
	if err != nil {
		return chat.NoIdentity, chat.NewAuthError(op, chat.AuthInvalidInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base.JoinPath("api", "auth", op).String(), bytes.NewReader(body))
	if err != nil {
		return chat.NoIdentity, chat.NewAuthError(op, chat.AuthUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return chat.NoIdentity, chat.NewAuthError(op, chat.AuthUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return chat.NoIdentity, chat.NewAuthError(op, reasonForStatus(resp.StatusCode), readErrorBody(resp))
	}
	var sr SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return chat.NoIdentity, chat.NewAuthError(op, chat.AuthUnavailable, errors.Wrap(err, "decode session"))
	}
	id := chat.Identity(sr.UID)
	if id.IsNone() || sr.Token == "" {
		return chat.NoIdentity, chat.NewAuthError(op, chat.AuthUnavailable, errors.New("backend returned an empty session"))
	}
	p.state.set(id, sr.Token)
	return id, nil
}

func reasonForStatus(status int) chat.AuthReason {
	switch status {
	case http.StatusConflict:
		return chat.AuthDuplicateAccount
	case http.StatusUnauthorized, http.StatusForbidden:
		return chat.AuthInvalidCredential
	case http.StatusBadRequest:
		return chat.AuthInvalidInput
	default:
		return chat.AuthUnavailable
	}
}

func readErrorBody(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er ErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		return errors.New(er.Error)
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return errors.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return errors.Errorf("status %d", resp.StatusCode)
}
