package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		owner, _ := cmd.Flags().GetString("owner")
		rateLimit, _ := cmd.Flags().GetUint32("rate-limit")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if scope == "" {
			return fmt.Errorf("--scope is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = time.Now().UTC().Add(ttl)
		}

		token, key, err := a.apikeyMgr().Issue(scope, owner, rateLimit, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to issue api key: %v", err)
		}

		fmt.Printf("✓ API key issued: %s\n", key.ID)
		fmt.Printf("  Token: %s\n", token)
		fmt.Printf("  Scope: %s\n", key.Scope)
		if key.Owner != "" {
			fmt.Printf("  Owner: %s\n", key.Owner)
		}
		if key.RateLimit > 0 {
			fmt.Printf("  Rate limit: %d/window\n", key.RateLimit)
		}
		if !key.ExpiresAt.IsZero() {
			fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Println()
		fmt.Println("This token is shown once and is not recoverable from the store.")
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.apikeyMgr().Revoke(args[0]); err != nil {
			return fmt.Errorf("failed to revoke api key: %v", err)
		}
		fmt.Printf("✓ API key revoked: %s\n", args[0])
		return nil
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		keys, err := a.store.ListAPIKeys()
		if err != nil {
			return fmt.Errorf("failed to list api keys: %v", err)
		}

		if len(keys) == 0 {
			fmt.Println("No api keys found")
			return nil
		}

		fmt.Printf("%-38s %-10s %-20s %-10s %s\n", "ID", "PREFIX", "SCOPE", "REVOKED", "OWNER")
		for _, k := range keys {
			revoked := "no"
			if !k.RevokedAt.IsZero() {
				revoked = "yes"
			}
			fmt.Printf("%-38s %-10s %-20s %-10s %s\n", k.ID, k.Prefix, k.Scope, revoked, k.Owner)
		}
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyIssueCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	apikeyCmd.AddCommand(apikeyListCmd)

	apikeyIssueCmd.Flags().String("scope", "", `Key scope, e.g. "admin" or "namespace:acme"`)
	apikeyIssueCmd.Flags().String("owner", "", "Owning namespace or account, recorded for audit purposes")
	apikeyIssueCmd.Flags().Uint32("rate-limit", 0, "Requests-per-window the key is entitled to (0 means unset; not enforced by CAVE itself)")
	apikeyIssueCmd.Flags().Duration("ttl", 0, "Key lifetime (0 means no expiry)")
}
