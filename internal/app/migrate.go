package app

import (
	"context"

	"github.com/blackbear10000/price-monitor/internal/storage"
)

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	return storage.Migrate(ctx, a.Config.Database, a.Logger)
}
