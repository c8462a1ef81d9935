package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/angelmondragon/draftsync/pkg/logger"
)

// Ensure applies every pending migration. Existing rows are preserved
// across schema versions because migrations only add tables and columns.
func Ensure(ctx context.Context, db *sql.DB, logg *logger.Logger) error {
	provider, err := NewProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	if logg != nil && len(results) > 0 {
		version, _ := provider.GetDBVersion(ctx)
		ctx = logg.WithFields(ctx, map[string]any{
			"applied":        len(results),
			"schema_version": version,
		})
		logg.Info(ctx, "local schema migrated")
	}
	return nil
}
