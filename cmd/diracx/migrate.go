package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diracgrid/diracx-go/internal/authdb"
	"github.com/diracgrid/diracx-go/internal/jobdb"
	"github.com/diracgrid/diracx-go/internal/pilot"
	"github.com/diracgrid/diracx-go/internal/sandbox"
	"github.com/diracgrid/diracx-go/internal/settings"
)

// commandMigrate applies pending migrations to every store without
// starting the server, for use in a deploy's init container or a local
// `diracx migrate` before the first `diracx serve`. Each internal package
// already applies its own migrations on Open, so this is a thin wrapper
// that connects, lets Open migrate, and closes again.
func commandMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations for every store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}
			return migrateAll(s)
		},
	}
}

func migrateAll(s *settings.Settings) error {
	stores := []struct {
		name string
		open func() error
	}{
		{"auth_db", func() error {
			db, err := authdb.Open(s.DatabaseDriver, s.AuthDBDSN)
			if err != nil {
				return err
			}
			return db.Close()
		}},
		{"pilot_db", func() error {
			db, err := pilot.Open(s.DatabaseDriver, s.PilotDBDSN)
			if err != nil {
				return err
			}
			return db.Close()
		}},
		{"sandbox_db", func() error {
			db, err := sandbox.Open(s.DatabaseDriver, s.SandboxDBDSN)
			if err != nil {
				return err
			}
			return db.Close()
		}},
		{"job_db", func() error {
			db, err := jobdb.Open(s.DatabaseDriver, s.JobDBDSN)
			if err != nil {
				return err
			}
			return db.Close()
		}},
	}
	for _, store := range stores {
		if err := store.open(); err != nil {
			return fmt.Errorf("migrating %s: %w", store.name, err)
		}
	}
	return nil
}
