// Package auth is a local stand-in for the account provider: it tracks who
// is signed in and tells listeners when that changes. Credentials are not
// verified here.
package auth

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"askweb/internal/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SessionKey is the storage key of the persisted sign-in.
const SessionKey = "authSession"

// DefaultSignupCredits are granted to a newly created account.
const DefaultSignupCredits = 10

// ErrInvalidEmail is returned by Login for malformed addresses.
var ErrInvalidEmail = errors.New("a valid email address is required")

// Accounts creates ledger accounts for new users.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID string, credits int) (bool, error)
}

// Manager holds the signed-in user.
type Manager struct {
	backend       storage.Storage
	accounts      Accounts
	signupCredits int
	logger        *zap.Logger

	mu        sync.RWMutex
	current   *User
	listeners map[int]func(*User)
	nextID    int
}

func NewManager(backend storage.Storage, accounts Accounts, signupCredits int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend:       backend,
		accounts:      accounts,
		signupCredits: signupCredits,
		logger:        logger,
		listeners:     make(map[int]func(*User)),
	}
}

// Restore signs the previous user back in. A missing or unreadable session
// leaves the manager signed out.
func (m *Manager) Restore(ctx context.Context) *User {
	data, err := m.backend.Get(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("failed to read auth session", zap.Error(err))
		}
		return nil
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil || user.ID == "" {
		m.logger.Warn("discarding unreadable auth session", zap.Error(err))
		return nil
	}

	m.set(&user)
	m.logger.Info("restored sign-in", zap.String("user_id", user.ID))
	return &user
}

// Login signs in by email, creating the account with signup credits on
// first use.
func (m *Manager) Login(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	user := &User{ID: UserIDForEmail(email), Email: email}

	if m.accounts != nil {
		created, err := m.accounts.EnsureAccount(ctx, user.ID, m.signupCredits)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create account")
		}
		if created {
			m.logger.Info("account created", zap.String("user_id", user.ID), zap.Int("credits", m.signupCredits))
		}
	}

	data, err := json.Marshal(user)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal auth session")
	}
	if err := m.backend.Put(ctx, SessionKey, data); err != nil {
		// still signed in for this process
		m.logger.Warn("failed to persist auth session", zap.Error(err))
	}

	m.set(user)
	return user, nil
}

// Logout signs out and forgets the persisted session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.backend.Delete(ctx, SessionKey); err != nil {
		m.logger.Warn("failed to delete auth session", zap.Error(err))
	}
	m.set(nil)
	return nil
}

// CurrentUser returns the signed-in user, or nil.
func (m *Manager) CurrentUser() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	u := *m.current
	return &u
}

// OnAuthChange registers fn for sign-in changes and returns its removal func.
func (m *Manager) OnAuthChange(fn func(*User)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) set(user *User) {
	m.mu.Lock()
	m.current = user
	listeners := make([]func(*User), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
