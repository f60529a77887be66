package db

import (
	"fmt"
	"io"
)

// MigrateActions lists the actions RunMigrateCommand accepts.
var MigrateActions = []string{"up", "down", "status"}

// RunMigrateCommand applies a migrate action to the ledger at dbPath and
// reports the resulting schema version on out. The database is opened
// without the automatic migration NewDB performs.
func RunMigrateCommand(action, dbPath string, out io.Writer) error {
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	migrations := MigrationsFS()
	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q (want one of %v)", action, MigrateActions)
	}

	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(out, "schema version: %d (dirty: %v)\n", version, dirty)
	return nil
}
