package db

import (
	"fmt"
	"io"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down or status.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "all migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "rolled back one migration")
	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "version %d (dirty=%t)\n", version, dirty)
	case "help":
		PrintMigrateHelp(w)
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: stress-report migrate <action>

Actions:
  up       apply all pending migrations
  down     roll back the most recent migration
  status   print the current schema version
  help     show this message
`)
}
