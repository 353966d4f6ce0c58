package ledger

import (
	"context"

	"askweb/internal/storage"

	"github.com/pkg/errors"
)

// Open returns the ledger named by driver.
func Open(ctx context.Context, driver, databaseURL string, backend storage.Storage) (Ledger, error) {
	switch driver {
	case "", "local":
		return NewLocalLedger(backend), nil
	case "postgres":
		return NewPostgresLedger(ctx, databaseURL)
	default:
		return nil, errors.Errorf("unknown ledger driver %q", driver)
	}
}
