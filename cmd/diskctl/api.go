package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/pkg/client"
	"github.com/faciam-dev/gcdisk/pkg/config"
)

func apiClient(cmd *cobra.Command) (*client.Client, error) {
	r, err := config.Resolve(cmd)
	if err != nil {
		return nil, err
	}
	return client.New(r.APIURL, client.WithToken(r.Token)), nil
}

func newDisksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "disks", Short: "Query disks through the API"}
	var opts client.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "Search disks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			out, err := c.ListDisks(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd, out)
			}
			rows := make([][]string, 0, len(out.Data))
			for _, d := range out.Data {
				rows = append(rows, []string{d.UUID, d.Name, d.Type, strconv.FormatInt(d.Size, 10), strconv.FormatInt(d.Used, 10)})
			}
			printTable(cmd, []string{"UUID", "Name", "Type", "Size", "Used"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", out.Meta.Page, out.Meta.LastPage, out.Meta.Total)
			return nil
		},
	}
	list.Flags().StringVar(&opts.Name, "name", "", "name contains")
	list.Flags().StringVar(&opts.Type, "type", "", "disk type code")
	list.Flags().IntVar(&opts.Page, "page", 0, "page number")
	list.Flags().IntVar(&opts.PerPage, "per-page", 0, "page size")
	list.Flags().StringVar(&opts.SortBy, "sort-by", "", "sort column")
	cmd.AddCommand(list)
	return cmd
}

func newDiskTypesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "disk-types", Short: "Query disk types through the API"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <code>",
		Short: "Show the form widgets of a disk type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.DiskType(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd, t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) driver=%s disks=%d\n", t.Name, t.Code, t.Driver, t.DisksCount)
			rows := make([][]string, 0, len(t.Widgets))
			for _, w := range t.Widgets {
				rows = append(rows, []string{w.Name, w.Label, w.Widget, strings.Join(t.Rules[w.Name], "|")})
			}
			printTable(cmd, []string{"Name", "Label", "Widget", "Rules"}, rows)
			return nil
		},
	})
	return cmd
}
