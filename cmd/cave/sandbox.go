package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/cave/pkg/sandbox"
	"github.com/cuemby/cave/pkg/types"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Manage sandboxes",
}

var sandboxCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		namespace, _ := cmd.Flags().GetString("namespace")
		cpuMillis, _ := cmd.Flags().GetInt64("cpu-millis")
		memoryMiB, _ := cmd.Flags().GetInt64("memory-mib")
		diskMiB, _ := cmd.Flags().GetInt64("disk-mib")
		timeoutSecs, _ := cmd.Flags().GetInt64("timeout-seconds")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		var limits *types.ResourceLimits
		if cpuMillis > 0 || memoryMiB > 0 || diskMiB > 0 || timeoutSecs > 0 {
			limits = &types.ResourceLimits{
				CPUMillis:   cpuMillis,
				MemoryBytes: memoryMiB << 20,
				DiskBytes:   diskMiB << 20,
				TimeoutSecs: timeoutSecs,
			}
		}

		sb, err := a.kernel.CreateSandbox(sandbox.CreateSandboxRequest{
			Namespace: namespace,
			Name:      name,
			Limits:    limits,
		})
		if err != nil {
			return fmt.Errorf("failed to create sandbox: %v", err)
		}

		fmt.Printf("✓ Sandbox created: %s\n", sb.Name)
		fmt.Printf("  ID: %s\n", sb.ID)
		fmt.Printf("  Namespace: %s\n", sb.Namespace)
		fmt.Printf("  Status: %s\n", sb.Status)
		return nil
	},
}

var sandboxStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start a sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		sb, err := a.kernel.StartSandbox(args[0])
		if err != nil {
			return fmt.Errorf("failed to start sandbox: %v", err)
		}
		fmt.Printf("✓ Sandbox running: %s\n", sb.ID)
		return nil
	},
}

var sandboxExecCmd = &cobra.Command{
	Use:   "exec ID -- COMMAND [ARGS...]",
	Short: "Run a command inside a running sandbox",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		command := args[1]
		cmdArgs := args[2:]
		timeoutSecs, _ := cmd.Flags().GetInt("timeout")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		var timeout time.Duration
		if timeoutSecs > 0 {
			timeout = time.Duration(timeoutSecs) * time.Second
		}

		outcome, err := a.kernel.Exec(id, sandbox.ExecRequest{
			Command: command,
			Args:    cmdArgs,
			Timeout: timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to exec: %v", err)
		}

		fmt.Print(outcome.Stdout)
		if outcome.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), outcome.Stderr)
		}
		if outcome.TimedOut {
			return fmt.Errorf("command timed out")
		}
		if outcome.ExitCode != 0 {
			return fmt.Errorf("command exited with code %d", outcome.ExitCode)
		}
		return nil
	},
}

var sandboxStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop a running sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.kernel.StopSandbox(args[0]); err != nil {
			return fmt.Errorf("failed to stop sandbox: %v", err)
		}
		fmt.Printf("✓ Sandbox stopped: %s\n", args[0])
		return nil
	},
}

var sandboxDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.kernel.DeleteSandbox(args[0]); err != nil {
			return fmt.Errorf("failed to delete sandbox: %v", err)
		}
		fmt.Printf("✓ Sandbox deleted: %s\n", args[0])
		return nil
	},
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, _ := cmd.Flags().GetString("namespace")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		sandboxes, err := a.kernel.ListSandboxes(namespace)
		if err != nil {
			return fmt.Errorf("failed to list sandboxes: %v", err)
		}

		if len(sandboxes) == 0 {
			fmt.Println("No sandboxes found")
			return nil
		}

		fmt.Printf("%-20s %-20s %-12s %s\n", "NAME", "NAMESPACE", "STATUS", "ID")
		for _, sb := range sandboxes {
			fmt.Printf("%-20s %-20s %-12s %s\n",
				truncate(sb.Name, 20),
				truncate(sb.Namespace, 20),
				sb.Status,
				sb.ID)
		}
		return nil
	},
}

var sandboxLogsCmd = &cobra.Command{
	Use:   "logs ID",
	Short: "Show recent executions for a sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		execs, err := a.kernel.RecentExecutions(args[0], limit)
		if err != nil {
			return fmt.Errorf("failed to list executions: %v", err)
		}

		for _, ex := range execs {
			fmt.Printf("[%s] %s %v (exit %d, %dms)\n",
				ex.StartedAt.Format(time.RFC3339), ex.Command, ex.Args, ex.ExitCode, ex.DurationMS)
		}
		return nil
	},
}

func init() {
	sandboxCmd.AddCommand(sandboxCreateCmd)
	sandboxCmd.AddCommand(sandboxStartCmd)
	sandboxCmd.AddCommand(sandboxExecCmd)
	sandboxCmd.AddCommand(sandboxStopCmd)
	sandboxCmd.AddCommand(sandboxDeleteCmd)
	sandboxCmd.AddCommand(sandboxListCmd)
	sandboxCmd.AddCommand(sandboxLogsCmd)

	sandboxCreateCmd.Flags().String("namespace", "default", "Sandbox namespace")
	sandboxCreateCmd.Flags().Int64("cpu-millis", 0, "CPU limit in millicores (0 uses the daemon default)")
	sandboxCreateCmd.Flags().Int64("memory-mib", 0, "Memory limit in MiB (0 uses the daemon default)")
	sandboxCreateCmd.Flags().Int64("disk-mib", 0, "Disk limit in MiB, recorded only (0 uses the daemon default)")
	sandboxCreateCmd.Flags().Int64("timeout-seconds", 0, "Per-exec wall-clock timeout (0 uses the daemon default)")

	sandboxExecCmd.Flags().Int("timeout", 0, "Override the sandbox's exec timeout in seconds")

	sandboxListCmd.Flags().String("namespace", "", "Filter by namespace (empty lists all)")

	sandboxLogsCmd.Flags().Int("limit", 20, "Maximum number of executions to show")
}
