package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage row-level security policies",
}

var policyUpsertCmd = &cobra.Command{
	Use:   "upsert NAME",
	Short: "Create or replace an RLS policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		id, _ := cmd.Flags().GetString("id")
		tableName, _ := cmd.Flags().GetString("table")
		predicate, _ := cmd.Flags().GetString("predicate")

		if tableName == "" {
			return fmt.Errorf("--table is required")
		}
		if predicate == "" {
			return fmt.Errorf("--predicate is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		policy, err := a.rlsEng.Upsert(id, tableName, name, []byte(predicate))
		if err != nil {
			return fmt.Errorf("failed to upsert policy: %v", err)
		}

		fmt.Printf("✓ Policy upserted: %s\n", policy.Name)
		fmt.Printf("  ID: %s\n", policy.ID)
		fmt.Printf("  Table: %s\n", policy.Table)
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policies attached to a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		tableName, _ := cmd.Flags().GetString("table")
		if tableName == "" {
			return fmt.Errorf("--table is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		policies, err := a.rlsEng.PoliciesForTable(tableName)
		if err != nil {
			return fmt.Errorf("failed to list policies: %v", err)
		}

		if len(policies) == 0 {
			fmt.Println("No policies found")
			return nil
		}

		fmt.Printf("%-20s %-20s %s\n", "NAME", "ID", "PREDICATE")
		for _, p := range policies {
			fmt.Printf("%-20s %-20s %s\n", p.Name, p.ID, string(p.Predicate))
		}
		return nil
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.rlsEng.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to delete policy: %v", err)
		}
		fmt.Printf("✓ Policy deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyUpsertCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyDeleteCmd)

	policyUpsertCmd.Flags().String("id", "", "Policy ID (generated if omitted)")
	policyUpsertCmd.Flags().String("table", "", "Table the policy attaches to")
	policyUpsertCmd.Flags().String("predicate", "", "Raw JSON predicate tree")

	policyListCmd.Flags().String("table", "", "Table to list policies for")
}
