package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresLedger keeps balances in a shared user_credits table.
type PostgresLedger struct {
	Pool *pgxpool.Pool
}

// NewPostgresLedger connects and ensures the schema exists.
func NewPostgresLedger(ctx context.Context, databaseURL string) (*PostgresLedger, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database URL")
	}

	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	l := &PostgresLedger{Pool: pool}
	if err := l.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_credits (
			user_id    TEXT PRIMARY KEY,
			credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := l.Pool.Exec(ctx, query); err != nil {
		return errors.Wrap(err, "failed to create user_credits table")
	}
	return nil
}

// Balance returns 0 for unknown accounts.
func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := l.Pool.QueryRow(ctx, `SELECT credits FROM user_credits WHERE user_id = $1`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch credits")
	}
	return credits, nil
}

// Charge decrements in one statement so concurrent clients cannot overdraw.
func (l *PostgresLedger) Charge(ctx context.Context, userID string) (int, error) {
	var credits int
	err := l.Pool.QueryRow(ctx, `
		UPDATE user_credits
		SET credits = credits - 1, updated_at = NOW()
		WHERE user_id = $1 AND credits > 0
		RETURNING credits
	`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to deduct credit")
	}
	return credits, nil
}

func (l *PostgresLedger) EnsureAccount(ctx context.Context, userID string, credits int) (bool, error) {
	tag, err := l.Pool.Exec(ctx, `
		INSERT INTO user_credits (user_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, credits)
	if err != nil {
		return false, errors.Wrap(err, "failed to create credits record")
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLedger) Close() {
	l.Pool.Close()
}
