package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/db"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the SQLite store schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, migrator, err := openMigrator(flags)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := migrator.Initialize(); err != nil {
				return err
			}
			version, err := migrator.CurrentVersion()
			if err != nil {
				return err
			}
			applied, err := migrator.GetAppliedMigrations()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printf(w, "%s %s\n", titleStyle.Render("Schema version"), okStyle.Render(fmt.Sprintf("V%d", version)))
			if len(applied) == 0 {
				printf(w, "%s\n", dimStyle.Render("No migrations applied."))
				return nil
			}
			for _, mig := range applied {
				printf(w, "  V%-3d %-20s %s  %s\n",
					mig.Version,
					mig.Description,
					mig.Checksum[:12],
					dimStyle.Render(humanize.Time(mig.AppliedAt)))
			}
			return nil
		},
	})

	var yes bool
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration, discarding the data it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !yes {
				printf(w, "%s rolling back drops stored data; pass --yes to confirm\n", warnStyle.Render("!"))
				return nil
			}

			database, migrator, err := openMigrator(flags)
			if err != nil {
				return err
			}
			defer database.Close()

			version, err := migrator.CurrentVersion()
			if err != nil {
				return err
			}
			if err := migrator.Down(); err != nil {
				return err
			}
			printf(w, "%s rolled back V%d\n", okStyle.Render("✓"), version)
			return nil
		},
	}
	downCmd.Flags().BoolVarP(&yes, "yes", "y", false, "roll back without confirmation")
	cmd.AddCommand(downCmd)

	return cmd
}

// openMigrator opens the SQLite database of the configured data directory
// without applying pending migrations.
func openMigrator(flags *globalFlags) (*db.DB, *db.Migrator, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Backend != config.BackendSQLite {
		return nil, nil, fmt.Errorf("migrations apply to the sqlite backend, not %q", cfg.Backend)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database, db.NewMigrator(database.DB), nil
}
