package auth

import (
	"context"
	"sync"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// Provider is an external auth provider as seen by the client.
//
// Changes delivers the current identity first and then the identity after every
// change. Deliveries are latest-wins: a consumer that lags sees the newest identity.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (chat.Identity, error)
	SignIn(ctx context.Context, email, password string) (chat.Identity, error)
	SignOut(ctx context.Context) error
	Changes() <-chan chat.Identity
}

// TokenSource yields the bearer token of the current session, or "".
type TokenSource interface {
	Token() string
}

// sessionState is the provider-side session record shared by the providers.
type sessionState struct {
	mu      sync.Mutex
	id      chat.Identity
	token   string
	changes chan chat.Identity
}

func newSessionState() *sessionState {
	s := &sessionState{changes: make(chan chat.Identity, 1)}
	s.changes <- chat.NoIdentity
	return s
}

func (s *sessionState) set(id chat.Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.token = token
	select {
	case <-s.changes:
	default:
	}
	s.changes <- id
}

func (s *sessionState) current() (chat.Identity, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.token
}
