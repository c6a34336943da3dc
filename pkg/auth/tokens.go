package auth

import (
	"sync"

	"github.com/google/uuid"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// Tokens maps opaque bearer tokens to identities for the backend.
type Tokens struct {
	mu     sync.RWMutex
	tokens map[string]chat.Identity
}

func NewTokens() *Tokens {
	return &Tokens{tokens: map[string]chat.Identity{}}
}

func (t *Tokens) Issue(id chat.Identity) string {
	tok := uuid.NewString()
	t.mu.Lock()
	t.tokens[tok] = id
	t.mu.Unlock()
	return tok
}

func (t *Tokens) Resolve(tok string) (chat.Identity, bool) {
	if tok == "" {
		return chat.NoIdentity, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.tokens[tok]
	return id, ok
}

func (t *Tokens) Revoke(tok string) {
	t.mu.Lock()
	delete(t.tokens, tok)
	t.mu.Unlock()
}
