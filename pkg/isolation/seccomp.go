package isolation

// defaultSyscallAllowlist is the baseline set of syscalls every sandbox
// exec may use, covering I/O, memory management, signals, basic process
// control and networking. Callers extend it by passing extra names to
// BuildSeccompProfile; duplicates are collapsed.
var defaultSyscallAllowlist = []string{
	"read", "write", "close", "exit", "exit_group",
	"futex", "sched_yield", "nanosleep",
	"clock_gettime", "clock_getres", "clock_nanosleep",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
	"set_tid_address", "set_robust_list",
	"brk", "mmap", "mprotect", "munmap", "mremap", "prlimit64",
	"getpid", "getppid", "gettid", "getuid", "geteuid", "getgid", "getegid",
	"getrandom", "readlink", "readlinkat",
	"open", "openat", "fstat", "newfstatat", "lseek", "stat", "lstat", "statx",
	"arch_prctl", "dup", "dup2", "dup3", "pipe", "pipe2", "ioctl", "uname",
	"access", "fcntl", "poll", "ppoll", "select", "pselect6",
	"eventfd2", "timerfd_create", "timerfd_settime", "timerfd_gettime",
	"chdir", "fchdir", "getcwd",
	"splice", "tee", "vmsplice", "writev", "readv", "pread64", "pwrite64",
	"rt_sigtimedwait", "wait4", "waitid", "kill", "tkill", "tgkill",
	"socket", "socketpair", "connect", "accept", "accept4", "bind", "listen",
	"getsockname", "getpeername", "getsockopt", "setsockopt", "shutdown",
	"sendto", "sendmsg", "sendmmsg", "recvfrom", "recvmsg", "recvmmsg",
	"clone", "clone3", "execve", "execveat",
	"umask", "sysinfo", "times", "gettimeofday", "setitimer", "getitimer",
	"madvise", "prctl",
}

// SeccompProfile is a resolved allowlist ready to hand to bwrap or to
// compile into a BPF filter for a direct exec.
type SeccompProfile struct {
	Syscalls []string
}

// BuildSeccompProfile merges the default allowlist with extra, preserving
// first-seen order and dropping duplicates.
func BuildSeccompProfile(extra []string) *SeccompProfile {
	seen := make(map[string]bool, len(defaultSyscallAllowlist)+len(extra))
	var merged []string

	for _, name := range defaultSyscallAllowlist {
		if !seen[name] {
			seen[name] = true
			merged = append(merged, name)
		}
	}
	for _, name := range extra {
		if !seen[name] {
			seen[name] = true
			merged = append(merged, name)
		}
	}

	return &SeccompProfile{Syscalls: merged}
}
