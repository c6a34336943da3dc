package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// LocalProvider authenticates in-process against an Accounts registry.
type LocalProvider struct {
	accounts *Accounts
	state    *sessionState
}

var _ Provider = &LocalProvider{}

func NewLocalProvider(accounts *Accounts) (*LocalProvider, error) {
	if accounts == nil {
		return nil, errors.New("local provider: accounts is nil")
	}
	return &LocalProvider{accounts: accounts, state: newSessionState()}, nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (chat.Identity, error) {
	id, err := p.accounts.Register(ctx, email, password)
	if err != nil {
		return chat.NoIdentity, err
	}
	p.state.set(id, "")
	return id, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (chat.Identity, error) {
	id, err := p.accounts.Verify(ctx, email, password)
	if err != nil {
		return chat.NoIdentity, err
	}
	p.state.set(id, "")
	return id, nil
}

func (p *LocalProvider) SignOut(context.Context) error {
	p.state.set(chat.NoIdentity, "")
	return nil
}

func (p *LocalProvider) Changes() <-chan chat.Identity { return p.state.changes }
