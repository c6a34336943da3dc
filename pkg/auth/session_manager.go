package auth

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// SessionManager owns the current session and publishes one Transition per actual
// identity change observed from its Provider.
type SessionManager struct {
	provider Provider

	mu      sync.RWMutex
	current chat.Identity

	transitions chan chat.Transition
}

func NewSessionManager(p Provider) (*SessionManager, error) {
	if p == nil {
		return nil, errors.New("session manager: provider is nil")
	}
	return &SessionManager{
		provider:    p,
		transitions: make(chan chat.Transition, 8),
	}, nil
}

// Transitions is the single observable stream of session changes.
// It is closed when Run returns.
func (m *SessionManager) Transitions() <-chan chat.Transition { return m.transitions }

func (m *SessionManager) Current() chat.Identity {
	if m == nil {
		return chat.NoIdentity
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Run forwards provider notifications until ctx is done.
func (m *SessionManager) Run(ctx context.Context) error {
	if m == nil {
		return errors.New("session manager: nil")
	}
	defer close(m.transitions)
	changes := m.provider.Changes()
	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-changes:
			if !ok {
				return nil
			}
			t, changed := m.apply(id)
			if !changed {
				continue
			}
			log.Info().Str("component", "auth").Str("from", string(t.From)).Str("to", string(t.To)).Msg("session changed")
			select {
			case m.transitions <- t:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (m *SessionManager) apply(id chat.Identity) (chat.Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id.IsNone() {
		id = chat.NoIdentity
	}
	if id == m.current {
		return chat.Transition{}, false
	}
	t := chat.Transition{From: m.current, To: id}
	m.current = id
	return t, true
}

func (m *SessionManager) SignUp(ctx context.Context, email, password string) (chat.Identity, error) {
	id, err := m.provider.SignUp(ctx, email, password)
	return id, asAuthError("signup", err)
}

func (m *SessionManager) SignIn(ctx context.Context, email, password string) (chat.Identity, error) {
	id, err := m.provider.SignIn(ctx, email, password)
	return id, asAuthError("signin", err)
}

func (m *SessionManager) SignOut(ctx context.Context) error {
	return asAuthError("signout", m.provider.SignOut(ctx))
}

// asAuthError keeps provider failures inside the recoverable AuthError class.
func asAuthError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *chat.AuthError
	if errors.As(err, &ae) {
		return err
	}
	return chat.NewAuthError(op, chat.AuthUnavailable, err)
}
