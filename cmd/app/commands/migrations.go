package commands

import (
	"log/slog"

	"github.com/allisson/credx/internal/database"
)

// RunMigrations applies the pending flow log migrations found under dir for the
// configured driver. Nothing to apply is not an error.
func RunMigrations(logger *slog.Logger, cfg database.Config, dir string) error {
	return database.Migrate(logger, cfg, dir)
}
