// Package credit gates searches on the user's credit balance.
package credit

import (
	"context"

	"askweb/internal/auth"

	"go.uber.org/zap"
)

// Ledger is the balance/charge capability of the external account provider.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Charge removes exactly one credit and returns the new balance.
	Charge(ctx context.Context, userID string) (int, error)
}

// Reason explains a denied authorization.
type Reason string

const (
	NoCreditsRemaining Reason = "NoCreditsRemaining"
	ChargeFailed       Reason = "ChargeFailed"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Charged is set when a credit was taken; Balance is then the new balance.
	Charged bool
	Balance int
}

// Gate decides whether a search may proceed. Accepted searches by an
// authenticated user cost one credit, charged up front and never refunded.
type Gate struct {
	ledger Ledger
	logger *zap.Logger
}

func NewGate(ledger Ledger, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{ledger: ledger, logger: logger}
}

// Authorize admits anonymous usage; whether anonymous usage reaches the gate
// at all is the caller's login policy.
func (g *Gate) Authorize(ctx context.Context, user *auth.User) Decision {
	if user == nil {
		return Decision{Allowed: true}
	}

	balance, err := g.ledger.Balance(ctx, user.ID)
	if err != nil {
		g.logger.Error("failed to fetch credit balance", zap.String("user_id", user.ID), zap.Error(err))
		return Decision{Reason: ChargeFailed}
	}
	if balance <= 0 {
		return Decision{Reason: NoCreditsRemaining, Balance: balance}
	}

	remaining, err := g.ledger.Charge(ctx, user.ID)
	if err != nil {
		g.logger.Error("failed to deduct credit", zap.String("user_id", user.ID), zap.Error(err))
		return Decision{Reason: ChargeFailed, Balance: balance}
	}

	g.logger.Debug("credit charged", zap.String("user_id", user.ID), zap.Int("balance", remaining))
	return Decision{Allowed: true, Charged: true, Balance: remaining}
}
