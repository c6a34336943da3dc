// Package auth owns the session lifecycle: credential checks, the providers that
// report session changes, and the SessionManager that turns them into transitions.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

const minPasswordLen = 6

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a stored credential record.
type Account struct {
	UID          chat.Identity
	Email        string
	PasswordHash []byte
	CreatedAtMs  int64
}

// AccountStore persists accounts keyed by normalized email.
type AccountStore interface {
	Create(ctx context.Context, acc Account) error
	Lookup(ctx context.Context, email string) (Account, error)
	Close() error
}

// Accounts registers and verifies email+password credentials.
type Accounts struct {
	store AccountStore
	cost  int
	now   func() time.Time
}

// NewAccounts returns an Accounts using bcrypt at cost (bcrypt.DefaultCost when <= 0).
func NewAccounts(store AccountStore, cost int) (*Accounts, error) {
	if store == nil {
		return nil, errors.New("accounts: store is nil")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{store: store, cost: cost, now: time.Now}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(op, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", chat.NewAuthError(op, chat.AuthInvalidInput, errors.New("email is required"))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", chat.NewAuthError(op, chat.AuthInvalidInput, errors.Wrap(err, "invalid email"))
	}
	if len(password) < minPasswordLen {
		return "", chat.NewAuthError(op, chat.AuthInvalidInput, errors.Errorf("password must be at least %d characters", minPasswordLen))
	}
	return email, nil
}

// Register creates a new account and returns its identity.
func (a *Accounts) Register(ctx context.Context, email, password string) (chat.Identity, error) {
	if a == nil {
		return chat.NoIdentity, chat.NewAuthError("signup", chat.AuthUnavailable, errors.New("accounts: nil"))
	}
	email, err := validateCredentials("signup", email, password)
	if err != nil {
		return chat.NoIdentity, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return chat.NoIdentity, chat.NewAuthError("signup", chat.AuthInvalidInput, err)
	}
	acc := Account{
		UID:          chat.Identity(uuid.NewString()),
		Email:        email,
		PasswordHash: hash,
		CreatedAtMs:  a.now().UnixMilli(),
	}
	if err := a.store.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return chat.NoIdentity, chat.NewAuthError("signup", chat.AuthDuplicateAccount, err)
		}
		return chat.NoIdentity, chat.NewAuthError("signup", chat.AuthUnavailable, err)
	}
	log.Info().Str("component", "auth").Str("identity", string(acc.UID)).Msg("account created")
	return acc.UID, nil
}

// Verify checks credentials and returns the account identity.
func (a *Accounts) Verify(ctx context.Context, email, password string) (chat.Identity, error) {
	if a == nil {
		return chat.NoIdentity, chat.NewAuthError("signin", chat.AuthUnavailable, errors.New("accounts: nil"))
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return chat.NoIdentity, chat.NewAuthError("signin", chat.AuthInvalidInput, errors.New("email and password are required"))
	}
	acc, err := a.store.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return chat.NoIdentity, chat.NewAuthError("signin", chat.AuthInvalidCredential, nil)
		}
		return chat.NoIdentity, chat.NewAuthError("signin", chat.AuthUnavailable, err)
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return chat.NoIdentity, chat.NewAuthError("signin", chat.AuthInvalidCredential, nil)
	}
	return acc.UID, nil
}

func (a *Accounts) Close() error {
	if a == nil {
		return nil
	}
	return a.store.Close()
}
