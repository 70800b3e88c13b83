package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/internal/config"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

// dbFlags are shared by the commands that talk to the database directly.
type dbFlags struct {
	Driver      string
	DSN         string
	TablePrefix string
}

func (f *dbFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.DSN, "db", util.EnvOr("", "DISK_DB_DSN"), "database DSN")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "database driver (detected from the DSN when empty)")
	cmd.Flags().StringVar(&f.TablePrefix, "table-prefix", util.EnvOr(config.DefaultTablePrefix, "TABLE_PREFIX"), "table name prefix")
}

func (f *dbFlags) open() (*sql.DB, error) {
	if f.DSN == "" {
		return nil, fmt.Errorf("--db is required")
	}
	if f.Driver == "" {
		d, err := util.DetectDriver(f.DSN)
		if err != nil {
			return nil, err
		}
		f.Driver = d
	}
	return sql.Open(f.Driver, util.DriverDSN(f.Driver, f.DSN))
}
