package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cave/internal/config"
	"github.com/cuemby/cave/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the audit log's raw JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
		if !cfg.AuditEnabled {
			fmt.Println("Audit logging is disabled (CAVE_AUDIT_LOG_ENABLED=false)")
			return nil
		}

		f, err := os.Open(cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %v", err)
		}
		defer f.Close()

		var lines []string
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read audit log: %v", err)
		}

		if limit > 0 && len(lines) > limit {
			lines = lines[len(lines)-limit:]
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every line in the audit log against the configured HMAC key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
		if len(cfg.AuditHMACKey) == 0 {
			return fmt.Errorf("no CAVE_AUDIT_LOG_HMAC_KEY configured; nothing to verify against")
		}

		f, err := os.Open(cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %v", err)
		}
		defer f.Close()

		var total, bad int
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			total++
			if _, err := audit.VerifySignedLine(scanner.Bytes(), cfg.AuditHMACKey); err != nil {
				bad++
				fmt.Printf("line %d: %v\n", total, err)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read audit log: %v", err)
		}

		if bad == 0 {
			fmt.Printf("✓ %d line(s) verified\n", total)
			return nil
		}
		return fmt.Errorf("%d of %d line(s) failed verification", bad, total)
	},
}

func init() {
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditTailCmd.Flags().Int("limit", 50, "Maximum number of lines to print (0 prints all)")
}
