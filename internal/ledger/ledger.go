// Package ledger stores per-user credit balances.
package ledger

import (
	"context"

	"github.com/pkg/errors"
)

// ErrInsufficientCredits is returned by Charge when the balance is zero.
var ErrInsufficientCredits = errors.New("ledger: no credits remaining")

// Ledger is implemented by every backend.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Charge(ctx context.Context, userID string) (int, error)
	EnsureAccount(ctx context.Context, userID string, credits int) (bool, error)
	Close()
}
