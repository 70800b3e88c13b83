package main

import (
	"encoding/json"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func wantJSON(cmd *cobra.Command) bool {
	out, _ := cmd.Root().PersistentFlags().GetString("output")
	return out == "json"
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func printTable(cmd *cobra.Command, header []string, rows [][]string) {
	tw := tablewriter.NewWriter(cmd.OutOrStdout())
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(rows)
	tw.Render()
}
