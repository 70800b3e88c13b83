package main

import (
	"log"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "diskctl", SilenceUsage: true}
	root.PersistentFlags().String("api-url", "", "Disk API base URL")
	root.PersistentFlags().String("token", "", "Bearer token for the Disk API")
	root.PersistentFlags().String("profile", "", "Profile name in config (overrides active)")
	root.PersistentFlags().String("output", "table", "Output format (table|json)")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newFieldsCmd())
	root.AddCommand(newLoginCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newDisksCmd())
	root.AddCommand(newDiskTypesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
