// Package isolation builds the namespace, cgroup, overlay and seccomp
// primitives the sandbox kernel wraps every exec in on Linux.
//
//   - Namespaces: bubblewrap (bwrap) unshares pid/uts/ipc/net/cgroup,
//     mounts a fresh /proc, and binds the host's read-only system
//     directories plus the sandbox's own read-write workspace.
//   - cgroups (v2): memory.max, pids.max and cpu.max are written before
//     the child is added to the cgroup, bounding memory, process count
//     and CPU share.
//   - Overlayfs: each exec gets a throwaway upper/work pair over a
//     shared lower, so writes never leak between executions.
//   - seccomp: a default syscall allowlist (extendable per sandbox) is
//     compiled to a classic BPF program and handed to bwrap's --seccomp,
//     or, on the non-namespaced path, installed by the re-exec helper
//     (SeccompExecVerb) before it execs the command.
//
// The package is Linux-only: it imports golang.org/x/sys/unix directly
// and has no stub implementations for other platforms.
package isolation
