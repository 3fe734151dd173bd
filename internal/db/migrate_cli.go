package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand implements "tracker migrate <up|down|status|force N>".
// Output is written to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return printVersion(database, out)

	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return printVersion(database, out)

	case "status":
		return printVersion(database, out)

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(v); err != nil {
			return err
		}
		return printVersion(database, out)

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printVersion(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: tracker migrate <action>

Actions:
  up         apply all pending migrations
  down       roll back the most recent migration
  status     print the current schema version
  force N    mark the schema as version N without running migrations
`)
}
