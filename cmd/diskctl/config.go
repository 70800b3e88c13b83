package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage diskctl profiles"}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <profile>",
		Short: "Set the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Use(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %q\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			names := cfg.Names()
			type entry struct {
				Name     string `json:"name"`
				APIURL   string `json:"apiUrl"`
				Active   bool   `json:"active"`
				HasToken bool   `json:"hasToken"`
			}
			entries := make([]entry, 0, len(names))
			rows := make([][]string, 0, len(names))
			for _, n := range names {
				p := cfg.Profiles[n]
				e := entry{Name: n, APIURL: p.APIURL, Active: n == cfg.Current, HasToken: p.Token != ""}
				entries = append(entries, e)
				mark := ""
				if e.Active {
					mark = "*"
				}
				rows = append(rows, []string{mark, n, p.APIURL, fmt.Sprint(e.HasToken)})
			}
			if wantJSON(cmd) {
				return printJSON(cmd, entries)
			}
			printTable(cmd, []string{"", "Profile", "API URL", "Token"}, rows)
			return nil
		},
	})
	return cmd
}
