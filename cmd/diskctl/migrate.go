package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/internal/disk"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	"github.com/faciam-dev/gcdisk/internal/seed"
	"github.com/faciam-dev/gcdisk/pkg/migrator"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

func newMigrateCmd() *cobra.Command {
	var flags dbFlags
	var to string
	var down, dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			m := migrator.NewWithDriverAndPrefix(flags.Driver, flags.TablePrefix)
			target, err := m.Resolve(to)
			if err != nil {
				return err
			}
			if dryRun {
				cur, err := m.Current(ctx, db)
				if err != nil {
					return err
				}
				if (down && target > cur) || (!down && target < cur) {
					return fmt.Errorf("target %d is on the wrong side of current version %d", target, cur)
				}
				for _, q := range m.SQLForRange(cur, target) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", q)
				}
				return nil
			}
			if down {
				err = m.Down(ctx, db, target)
			} else {
				err = m.Up(ctx, db, target)
			}
			if err != nil {
				return err
			}
			cur, err := m.Current(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (%s)\n", cur, m.SemVer(cur))
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&to, "to", "", "target version, number or semver (default latest)")
	cmd.Flags().BoolVar(&down, "down", false, "migrate down to --to")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the SQL instead of running it")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install permissions, the admin role and built-in disk types",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer db.Close()
			dialect := util.DialectFromDriver(flags.Driver)
			roles := &rbac.RoleRepo{DB: db, Driver: flags.Driver, Dialect: dialect, TablePrefix: flags.TablePrefix}
			types := &disk.Repo{DB: db, Driver: flags.Driver, Dialect: dialect, TablePrefix: flags.TablePrefix}
			if err := seed.Run(cmd.Context(), roles, types); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seeded")
			return nil
		},
	}
	flags.addFlags(cmd)
	return cmd
}
