package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/cave/pkg/table"
	"github.com/cuemby/cave/pkg/types"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Run statements against the embedded table engine",
}

var tableQueryCmd = &cobra.Command{
	Use:   "query SQL",
	Short: "Execute a single INSERT/SELECT/UPDATE/DELETE statement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		subject, _ := cmd.Flags().GetString("subject")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		stmt, err := table.Parse(args[0])
		if err != nil {
			return fmt.Errorf("failed to parse statement: %v", err)
		}
		plan, err := table.Plan(stmt)
		if err != nil {
			return fmt.Errorf("failed to plan statement: %v", err)
		}

		claims := types.TokenClaims{Subject: subject, Scope: scope}
		result, err := a.exec.Execute(plan, claims)
		if err != nil {
			return fmt.Errorf("failed to execute statement: %v", err)
		}

		if len(result.Rows) > 0 {
			printRows(result.Rows)
		}
		fmt.Printf("✓ %d row(s) affected\n", result.RowsAffected)
		return nil
	},
}

var tableListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known tables and their row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		summaries := a.tableEng.TableSummaries()
		if len(summaries) == 0 {
			fmt.Println("No tables found")
			return nil
		}

		fmt.Printf("%-30s %-10s %s\n", "TABLE", "ROWS", "COLUMNS")
		for _, s := range summaries {
			fmt.Printf("%-30s %-10d %s\n", s.Name, s.RowCount, strings.Join(s.Columns, ", "))
		}
		return nil
	},
}

func printRows(rows []types.Row) {
	if len(rows) == 0 {
		return
	}

	var columns []string
	for col := range rows[0] {
		columns = append(columns, col)
	}

	fmt.Println(strings.Join(columns, "\t"))
	for _, row := range rows {
		vals := make([]string, len(columns))
		for i, col := range columns {
			vals[i] = scalarString(row[col])
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
}

func scalarString(v types.ScalarValue) string {
	switch v.Kind {
	case types.KindNull:
		return "NULL"
	case types.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case types.KindFloat:
		return fmt.Sprintf("%g", v.Flt)
	case types.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case types.KindString:
		return v.Str
	default:
		return ""
	}
}

func init() {
	tableCmd.AddCommand(tableQueryCmd)
	tableCmd.AddCommand(tableListCmd)

	tableQueryCmd.Flags().String("scope", "admin", `Caller scope: "admin" bypasses RLS, anything else is evaluated against policies`)
	tableQueryCmd.Flags().String("subject", "cli", "Caller subject recorded on the claims passed to RLS predicates")
}
