package isolation

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ExecSpec is the minimal description isolation needs to build a
// command line; callers (pkg/sandbox) translate their own exec request
// into this shape so isolation never imports the kernel package.
type ExecSpec struct {
	Command string
	Args    []string
	Env     []string
	// WorkDir is the directory the process should run in, typically the
	// sandbox workspace or its overlay merged view.
	WorkDir string
}

// readOnlyHostPaths are bind-mounted read-only into every bwrap sandbox
// so the guest process can find a libc, a shell and common binaries.
var readOnlyHostPaths = []string{"/usr", "/bin", "/sbin", "/lib", "/lib64", "/etc"}

// defaultUnshareNamespaces is the namespace set bwrap unshares when
// BwrapOptions.Unshare is empty.
var defaultUnshareNamespaces = []string{"pid", "uts", "ipc", "net", "cgroup"}

// BwrapOptions carries the host-configurable knobs layered on top of
// BuildBubblewrapCommand's hardcoded defaults (internal/config surfaces
// these as CAVE_BWRAP_* environment variables). The zero value reproduces
// the previous hardcoded behavior exactly.
type BwrapOptions struct {
	// Unshare overrides the default namespace set ("pid", "uts", "ipc",
	// "net", "cgroup"); nil/empty keeps the default set.
	Unshare []string
	// DropCaps lists Linux capability names (without the CAP_ prefix)
	// to drop via bwrap's --cap-drop.
	DropCaps []string
	// ExtraROPaths are bind-mounted read-only in addition to
	// readOnlyHostPaths.
	ExtraROPaths []string
	// ExtraDevPaths are dev-bound in addition to /dev.
	ExtraDevPaths []string
	// ExtraTmpfsPaths get a fresh tmpfs in addition to /tmp.
	ExtraTmpfsPaths []string
	// UID/GID, when non-nil, map the sandboxed process to that
	// uid/gid inside its fresh user namespace.
	UID *int
	GID *int
	// ProcPath overrides where /proc is mounted inside the sandbox;
	// defaults to "/proc".
	ProcPath string
}

// BuildBubblewrapCommand wraps spec in a bwrap invocation: PID/UTS/IPC/
// net/cgroup namespaces, a fresh /proc, the host's /dev bound in, the host's read-only
// system directories, and spec.WorkDir bound read-write at the same
// path inside the sandbox. When profile is non-nil its compiled BPF
// program is passed to bwrap's --seccomp by inheriting an extra file
// descriptor.
func BuildBubblewrapCommand(bwrapPath string, spec ExecSpec, profile *SeccompProfile, opts BwrapOptions) (*exec.Cmd, error) {
	procPath := opts.ProcPath
	if procPath == "" {
		procPath = "/proc"
	}
	unshare := opts.Unshare
	if len(unshare) == 0 {
		unshare = defaultUnshareNamespaces
	}

	args := []string{"--die-with-parent", "--new-session"}
	for _, ns := range unshare {
		args = append(args, "--unshare-"+ns)
	}
	args = append(args, "--proc", procPath)

	for _, cap := range opts.DropCaps {
		args = append(args, "--cap-drop", cap)
	}
	if opts.UID != nil {
		args = append(args, "--uid", fmt.Sprintf("%d", *opts.UID))
	}
	if opts.GID != nil {
		args = append(args, "--gid", fmt.Sprintf("%d", *opts.GID))
	}

	for _, hostPath := range append(append([]string{}, readOnlyHostPaths...), opts.ExtraROPaths...) {
		if _, err := os.Stat(hostPath); err == nil {
			args = append(args, "--ro-bind", hostPath, hostPath)
		}
	}

	args = append(args, "--dev-bind", "/dev", "/dev")
	for _, devPath := range opts.ExtraDevPaths {
		args = append(args, "--dev-bind", devPath, devPath)
	}

	args = append(args,
		"--bind", spec.WorkDir, spec.WorkDir,
		"--chdir", spec.WorkDir,
		"--tmpfs", "/tmp",
	)
	for _, tmpfsPath := range opts.ExtraTmpfsPaths {
		args = append(args, "--tmpfs", tmpfsPath)
	}
	args = append(args, "--setenv", "PATH", "/usr/bin:/bin:/sbin")

	cmd := exec.Command(bwrapPath)

	if profile != nil {
		prog, err := CompileBPF(profile)
		if err != nil {
			return nil, fmt.Errorf("isolation: compile seccomp profile: %w", err)
		}
		filterFile, err := seccompFilterFile(prog)
		if err != nil {
			return nil, fmt.Errorf("isolation: materialize seccomp filter: %w", err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, filterFile)
		// ExtraFiles[0] lands at fd 3 in the child.
		args = append(args, "--seccomp", "3")
	}

	args = append(args, "--", spec.Command)
	args = append(args, spec.Args...)
	cmd.Args = append([]string{bwrapPath}, args...)
	cmd.Env = spec.Env

	return cmd, nil
}

// BuildPlainCommand runs spec.Command directly with no namespace
// isolation, for hosts without bubblewrap or when IsolationSettings
// disables namespaces.
func BuildPlainCommand(spec ExecSpec) *exec.Cmd {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	return cmd
}

// SeccompExecVerb is the hidden subcommand argv[1] the binary recognizes
// as the re-exec helper target; cmd/cave intercepts it before cobra sees
// it, since the trailing args are the sandboxed command's own argv and
// can't be parsed as flags.
const SeccompExecVerb = "__seccomp-exec"

// BuildPlainCommandWithSeccomp runs spec.Command with profile's filter
// applied, for the non-namespaced exec path where there's no bwrap to
// hand the filter fd to via --seccomp. It re-execs the running binary as
// a "__seccomp-exec" helper: the helper installs the filter on itself via
// a prctl pre-exec hook, then execve's into spec.Command, so the filter
// is in force from that process's very first instruction onward.
func BuildPlainCommandWithSeccomp(spec ExecSpec, profile *SeccompProfile) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("isolation: locate self for seccomp re-exec: %w", err)
	}

	prog, err := CompileBPF(profile)
	if err != nil {
		return nil, fmt.Errorf("isolation: compile seccomp profile: %w", err)
	}
	filterFile, err := seccompFilterFile(prog)
	if err != nil {
		return nil, fmt.Errorf("isolation: materialize seccomp filter: %w", err)
	}

	args := append([]string{SeccompExecVerb, "--", spec.Command}, spec.Args...)
	cmd := exec.Command(self, args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.ExtraFiles = append(cmd.ExtraFiles, filterFile)
	return cmd, nil
}

// seccompFilterFile writes prog as a raw sock_fprog-compatible byte
// stream to an unlinked temp file and returns it positioned at offset 0,
// ready to be passed to a child via exec.Cmd.ExtraFiles.
func seccompFilterFile(prog []unix.SockFilter) (*os.File, error) {
	f, err := os.CreateTemp("", "cave-seccomp-*")
	if err != nil {
		return nil, err
	}
	_ = os.Remove(f.Name())

	for _, ins := range prog {
		var buf [8]byte
		buf[0] = byte(ins.Code)
		buf[1] = byte(ins.Code >> 8)
		buf[2] = ins.Jt
		buf[3] = ins.Jf
		buf[4] = byte(ins.K)
		buf[5] = byte(ins.K >> 8)
		buf[6] = byte(ins.K >> 16)
		buf[7] = byte(ins.K >> 24)
		if _, err := f.Write(buf[:]); err != nil {
			f.Close()
			return nil, err
		}
	}

	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WhichBubblewrap locates the bwrap binary on PATH, returning an empty
// string (not an error) if it isn't installed so callers can fall back
// to BuildPlainCommand.
func WhichBubblewrap() string {
	path, err := exec.LookPath("bwrap")
	if err != nil {
		return ""
	}
	return path
}
