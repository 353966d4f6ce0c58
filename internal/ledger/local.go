package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"askweb/internal/storage"

	"github.com/pkg/errors"
)

// CreditsKey is the storage key of the local balance table.
const CreditsKey = "userCredits"

// LocalLedger keeps balances in the client's own storage. It is the
// single-user fallback when no shared ledger database is configured.
type LocalLedger struct {
	backend storage.Storage
	mu      sync.Mutex
}

func NewLocalLedger(backend storage.Storage) *LocalLedger {
	return &LocalLedger{backend: backend}
}

func (l *LocalLedger) load(ctx context.Context) (map[string]int, error) {
	data, err := l.backend.Get(ctx, CreditsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read credits")
	}

	balances := map[string]int{}
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, errors.Wrap(err, "failed to parse credits")
	}
	return balances, nil
}

func (l *LocalLedger) save(ctx context.Context, balances map[string]int) error {
	data, err := json.Marshal(balances)
	if err != nil {
		return errors.Wrap(err, "failed to marshal credits")
	}
	return errors.Wrap(l.backend.Put(ctx, CreditsKey, data), "failed to write credits")
}

// Balance returns 0 for unknown accounts.
func (l *LocalLedger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	return balances[userID], nil
}

func (l *LocalLedger) Charge(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	if balances[userID] <= 0 {
		return 0, ErrInsufficientCredits
	}

	balances[userID]--
	if err := l.save(ctx, balances); err != nil {
		return 0, err
	}
	return balances[userID], nil
}

func (l *LocalLedger) EnsureAccount(ctx context.Context, userID string, credits int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := balances[userID]; ok {
		return false, nil
	}

	balances[userID] = credits
	if err := l.save(ctx, balances); err != nil {
		return false, err
	}
	return true, nil
}

// Grant adds credits to an account, creating it if needed.
func (l *LocalLedger) Grant(ctx context.Context, userID string, credits int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	balances[userID] += credits
	if err := l.save(ctx, balances); err != nil {
		return 0, err
	}
	return balances[userID], nil
}

func (l *LocalLedger) Close() {}
