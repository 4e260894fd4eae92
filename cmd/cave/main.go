package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/cuemby/cave/internal/config"
	"github.com/cuemby/cave/pkg/apikey"
	"github.com/cuemby/cave/pkg/audit"
	"github.com/cuemby/cave/pkg/isolation"
	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/metrics"
	"github.com/cuemby/cave/pkg/realtime"
	"github.com/cuemby/cave/pkg/rls"
	"github.com/cuemby/cave/pkg/sandbox"
	"github.com/cuemby/cave/pkg/table"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// isolation.BuildPlainCommandWithSeccomp re-execs this binary with
	// this verb to install a seccomp filter on the non-namespaced exec
	// path; intercept it ahead of cobra since the trailing argv is the
	// sandboxed command's own, not flags for us to parse.
	if len(os.Args) > 1 && os.Args[1] == isolation.SeccompExecVerb {
		runSeccompExecHelper(os.Args[2:])
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runSeccompExecHelper installs the seccomp-BPF filter passed on fd 3,
// then replaces this process's image with the target command via
// execve, so the filter is in force before the target runs its first
// instruction.
func runSeccompExecHelper(args []string) {
	sep := -1
	for i, a := range args {
		if a == "--" {
			sep = i
			break
		}
	}
	if sep < 0 || sep+1 >= len(args) {
		fmt.Fprintln(os.Stderr, "cave: seccomp-exec: missing -- <command> [args...]")
		os.Exit(127)
	}
	target := args[sep+1]
	targetArgs := args[sep+1:]

	if err := isolation.InstallSeccompFilterFromFD(3); err != nil {
		fmt.Fprintf(os.Stderr, "cave: seccomp-exec: %v\n", err)
		os.Exit(126)
	}

	path, err := exec.LookPath(target)
	if err != nil {
		path = target
	}
	if err := unix.Exec(path, targetArgs, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "cave: seccomp-exec: exec %s: %v\n", target, err)
		os.Exit(127)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cave",
	Short: "CAVE - embedded sandbox kernel and row-secured table engine",
	Long: `CAVE runs isolated sandboxes (bubblewrap + cgroup v2, process-backed)
and a single embedded table engine with row-level security and a
write-ahead log, all inside one process with no external database or
cluster to stand up.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"CAVE version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(sandboxCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(auditCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// app bundles every component a CLI command needs to talk to CAVE's
// embedded stores. Each invocation of the CLI opens its own metastore and
// table engine handles against the same on-disk files the daemon uses, so
// it must only ever run against a stopped daemon or a daemon that does
// not hold an exclusive lock on them; the metastore is BoltDB, which
// takes a file lock, so a concurrent daemon process will cause these
// commands to block or fail to open.
type app struct {
	cfg      config.Config
	store    *metastore.Store
	auditW   *audit.Writer
	kernel   *sandbox.Kernel
	rlsEng   *rls.Engine
	hub      *realtime.Hub
	tableEng *table.Engine
	exec     *table.Executor
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := metastore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metastore: %w", err)
	}

	auditW, err := audit.NewWriter(audit.Config{
		Enabled: cfg.AuditEnabled,
		LogPath: cfg.AuditPath,
		HMACKey: cfg.AuditHMACKey,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	kernel, err := sandbox.New(store, cfg.KernelConfig(), auditW)
	if err != nil {
		auditW.Close()
		store.Close()
		return nil, fmt.Errorf("failed to start sandbox kernel: %w", err)
	}

	rlsEng := rls.NewEngine(store)

	hub := realtime.NewHub()
	tableEng, err := table.Open(cfg.DataDir + "/table.wal")
	if err != nil {
		auditW.Close()
		store.Close()
		return nil, fmt.Errorf("failed to open table engine: %w", err)
	}
	exec := table.NewExecutor(tableEng, rlsEng, hub)

	return &app{
		cfg:      cfg,
		store:    store,
		auditW:   auditW,
		kernel:   kernel,
		rlsEng:   rlsEng,
		hub:      hub,
		tableEng: tableEng,
		exec:     exec,
	}, nil
}

func (a *app) apikeyMgr() *apikey.Manager {
	return apikey.NewManager(a.store)
}

func (a *app) close() {
	if a.tableEng != nil {
		a.tableEng.Close()
	}
	if a.auditW != nil {
		a.auditW.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run CAVE as a long-lived process with a metrics/health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		policySeed, _ := cmd.Flags().GetString("policy-seed")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()
		fmt.Println("✓ Metastore opened")
		fmt.Println("✓ Sandbox kernel started")
		fmt.Println("✓ Table engine opened")
		metrics.RegisterComponent("metastore", true, "opened")
		metrics.RegisterComponent("kernel", true, "ready")

		if policySeed != "" {
			if err := config.LoadPolicySeed(policySeed, a.rlsEng); err != nil {
				return fmt.Errorf("failed to seed RLS policies: %w", err)
			}
			fmt.Printf("✓ RLS policies seeded from %s\n", policySeed)
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("audit", true, "ready")

		collector := metrics.NewCollector(a.kernel)
		collector.Start()
		defer collector.Stop()
		fmt.Println("✓ Metrics collector started")

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				mux.Handle("/health", metrics.HealthHandler())
				mux.Handle("/ready", metrics.ReadyHandler())
				mux.Handle("/live", metrics.LivenessHandler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
				}
			}()
			fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
			fmt.Printf("  - Health check: http://%s/health\n", metricsAddr)
			fmt.Printf("  - Readiness:    http://%s/ready\n", metricsAddr)
			fmt.Printf("  - Liveness:     http://%s/live\n", metricsAddr)
		}

		fmt.Println()
		fmt.Println("CAVE daemon running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, /ready, /live on (empty disables)")
	daemonCmd.Flags().String("policy-seed", "", "Path to a YAML RLS policy-seed file to apply at startup")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
