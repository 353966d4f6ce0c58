package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newTestPostgresLedger(t *testing.T) *PostgresLedger {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres ledger test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("askweb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	l, err := NewPostgresLedger(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestPostgresLedger(t *testing.T) {
	l := newTestPostgresLedger(t)
	ctx := context.Background()

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	created, err := l.EnsureAccount(ctx, "u1", 3)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.EnsureAccount(ctx, "u1", 10)
	require.NoError(t, err)
	assert.False(t, created)

	remaining, err := l.Charge(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	_, err = l.Charge(ctx, "nobody")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestPostgresLedger_ConcurrentChargesNeverOverdraw(t *testing.T) {
	l := newTestPostgresLedger(t)
	ctx := context.Background()

	_, err := l.EnsureAccount(ctx, "u1", 5)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Charge(ctx, "u1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successes)
	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}
