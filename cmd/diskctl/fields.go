package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcdisk/internal/audit"
	"github.com/faciam-dev/gcdisk/pkg/fields"
)

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "fields", Short: "Inspect field definition files"}
	cmd.AddCommand(newFieldsInspectCmd())
	cmd.AddCommand(newFieldsDiffCmd())
	return cmd
}

// loadSchema reads a field list. Files ending in .yaml or .yml are YAML,
// everything else is JSON.
func loadSchema(path string) (fields.Schema, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fields.Schema{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return fields.ParseYAML(b)
	default:
		return fields.ParseJSON(b)
	}
}

func newFieldsInspectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the validation rules and form widgets a field list produces",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchema(file)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd, struct {
					Rules map[string][]string `json:"rules"`
					Form  []fields.FormField  `json:"form"`
				}{s.Rules(), s.Form()})
			}
			rows := make([][]string, 0, s.Len())
			for _, f := range s.Fields() {
				ff := f.FormField()
				rows = append(rows, []string{f.Name(), string(f.Type()), ff.Label, ff.Widget, strings.Join(f.Rules(), "|"), formRules(ff.Rules)})
			}
			printTable(cmd, []string{"Name", "Type", "Label", "Widget", "Rules", "Client Rules"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "field list (JSON or YAML)")
	cobra.CheckErr(cmd.MarkFlagRequired("file"))
	return cmd
}

func formRules(r map[string]any) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r[k]))
	}
	return strings.Join(parts, " ")
}

func newFieldsDiffCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff the validation rules of two field lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadSchema(from)
			if err != nil {
				return fmt.Errorf("%s: %w", from, err)
			}
			b, err := loadSchema(to)
			if err != nil {
				return fmt.Errorf("%s: %w", to, err)
			}
			before, err := json.Marshal(a.Rules())
			if err != nil {
				return err
			}
			after, err := json.Marshal(b.Rules())
			if err != nil {
				return err
			}
			unified, added, removed := audit.UnifiedDiff(from, to, before, after)
			if unified == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no rule changes")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), unified)
			fmt.Fprintf(cmd.OutOrStdout(), "+%d -%d\n", added, removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "old field list")
	cmd.Flags().StringVar(&to, "to", "", "new field list")
	cobra.CheckErr(cmd.MarkFlagRequired("from"))
	cobra.CheckErr(cmd.MarkFlagRequired("to"))
	return cmd
}
