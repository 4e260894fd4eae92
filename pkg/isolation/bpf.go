package isolation

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// syscallNumbers maps the syscall names in defaultSyscallAllowlist to
// their numeric identifier on the build architecture. golang.org/x/sys/unix
// ships these as per-arch constants (SYS_*), so this table only needs
// entries for the handful of syscalls CAVE's default profile cares
// about rather than a full syscall table.
var syscallNumbers = map[string]int64{
	"read": unix.SYS_READ, "write": unix.SYS_WRITE, "close": unix.SYS_CLOSE,
	"exit": unix.SYS_EXIT, "exit_group": unix.SYS_EXIT_GROUP,
	"futex": unix.SYS_FUTEX, "sched_yield": unix.SYS_SCHED_YIELD,
	"nanosleep": unix.SYS_NANOSLEEP, "clock_gettime": unix.SYS_CLOCK_GETTIME,
	"clock_getres": unix.SYS_CLOCK_GETRES, "clock_nanosleep": unix.SYS_CLOCK_NANOSLEEP,
	"rt_sigaction": unix.SYS_RT_SIGACTION, "rt_sigprocmask": unix.SYS_RT_SIGPROCMASK,
	"rt_sigreturn": unix.SYS_RT_SIGRETURN, "sigaltstack": unix.SYS_SIGALTSTACK,
	"set_tid_address": unix.SYS_SET_TID_ADDRESS, "set_robust_list": unix.SYS_SET_ROBUST_LIST,
	"brk": unix.SYS_BRK, "mmap": unix.SYS_MMAP, "mprotect": unix.SYS_MPROTECT,
	"munmap": unix.SYS_MUNMAP, "mremap": unix.SYS_MREMAP, "prlimit64": unix.SYS_PRLIMIT64,
	"getpid": unix.SYS_GETPID, "getppid": unix.SYS_GETPPID, "gettid": unix.SYS_GETTID,
	"getuid": unix.SYS_GETUID, "geteuid": unix.SYS_GETEUID,
	"getgid": unix.SYS_GETGID, "getegid": unix.SYS_GETEGID,
	"getrandom": unix.SYS_GETRANDOM, "readlink": unix.SYS_READLINK, "readlinkat": unix.SYS_READLINKAT,
	"open": unix.SYS_OPEN, "openat": unix.SYS_OPENAT, "fstat": unix.SYS_FSTAT,
	"newfstatat": unix.SYS_NEWFSTATAT, "lseek": unix.SYS_LSEEK,
	"stat": unix.SYS_STAT, "lstat": unix.SYS_LSTAT, "statx": unix.SYS_STATX,
	"arch_prctl": unix.SYS_ARCH_PRCTL, "dup": unix.SYS_DUP, "dup2": unix.SYS_DUP2,
	"dup3": unix.SYS_DUP3, "pipe": unix.SYS_PIPE, "pipe2": unix.SYS_PIPE2,
	"ioctl": unix.SYS_IOCTL, "uname": unix.SYS_UNAME, "access": unix.SYS_ACCESS,
	"fcntl": unix.SYS_FCNTL, "poll": unix.SYS_POLL, "ppoll": unix.SYS_PPOLL,
	"select": unix.SYS_SELECT, "pselect6": unix.SYS_PSELECT6,
	"eventfd2": unix.SYS_EVENTFD2, "timerfd_create": unix.SYS_TIMERFD_CREATE,
	"timerfd_settime": unix.SYS_TIMERFD_SETTIME, "timerfd_gettime": unix.SYS_TIMERFD_GETTIME,
	"chdir": unix.SYS_CHDIR, "fchdir": unix.SYS_FCHDIR, "getcwd": unix.SYS_GETCWD,
	"splice": unix.SYS_SPLICE, "tee": unix.SYS_TEE, "vmsplice": unix.SYS_VMSPLICE,
	"writev": unix.SYS_WRITEV, "readv": unix.SYS_READV,
	"pread64": unix.SYS_PREAD64, "pwrite64": unix.SYS_PWRITE64,
	"rt_sigtimedwait": unix.SYS_RT_SIGTIMEDWAIT, "wait4": unix.SYS_WAIT4, "waitid": unix.SYS_WAITID,
	"kill": unix.SYS_KILL, "tkill": unix.SYS_TKILL, "tgkill": unix.SYS_TGKILL,
	"socket": unix.SYS_SOCKET, "socketpair": unix.SYS_SOCKETPAIR, "connect": unix.SYS_CONNECT,
	"accept": unix.SYS_ACCEPT, "accept4": unix.SYS_ACCEPT4, "bind": unix.SYS_BIND, "listen": unix.SYS_LISTEN,
	"getsockname": unix.SYS_GETSOCKNAME, "getpeername": unix.SYS_GETPEERNAME,
	"getsockopt": unix.SYS_GETSOCKOPT, "setsockopt": unix.SYS_SETSOCKOPT, "shutdown": unix.SYS_SHUTDOWN,
	"sendto": unix.SYS_SENDTO, "sendmsg": unix.SYS_SENDMSG, "sendmmsg": unix.SYS_SENDMMSG,
	"recvfrom": unix.SYS_RECVFROM, "recvmsg": unix.SYS_RECVMSG, "recvmmsg": unix.SYS_RECVMMSG,
	"clone": unix.SYS_CLONE, "clone3": unix.SYS_CLONE3, "execve": unix.SYS_EXECVE, "execveat": unix.SYS_EXECVEAT,
	"umask": unix.SYS_UMASK, "sysinfo": unix.SYS_SYSINFO, "times": unix.SYS_TIMES,
	"gettimeofday": unix.SYS_GETTIMEOFDAY, "setitimer": unix.SYS_SETITIMER, "getitimer": unix.SYS_GETITIMER,
	"madvise": unix.SYS_MADVISE, "prctl": unix.SYS_PRCTL,
}

const (
	bpfAuditArch = 0xc000003e // AUDIT_ARCH_X86_64, the common bwrap/runc default target
	seccompRetAllow = 0x7fff0000
	seccompRetKill  = 0x00000000
)

// CompileBPF lowers profile into a classic BPF program implementing a
// default-kill allowlist: the nr field of each inbound seccomp_data is
// compared against every allowed syscall number in turn, falling through
// to SECCOMP_RET_KILL (0, which kills the offending thread) if nothing
// matches.
//
// The program layout is the one libseccomp and runc both emit: a single
// architecture guard followed by a linear chain of equality checks. It
// is O(n) rather than a jump table. Each jump offset is a single byte, so
// an allowlist of more than 255 entries is rejected with an error.
func CompileBPF(profile *SeccompProfile) ([]unix.SockFilter, error) {
	var numbers []int64
	for _, name := range profile.Syscalls {
		nr, ok := syscallNumbers[name]
		if !ok {
			return nil, fmt.Errorf("isolation: unknown syscall %q in allowlist", name)
		}
		numbers = append(numbers, nr)
	}

	prog := []unix.SockFilter{
		// load arch field (offset 4 in struct seccomp_data), jump away if mismatched
		bpfStmt(unix.BPF_LD|unix.BPF_W|unix.BPF_ABS, 4),
		bpfJump(unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K, uint32(bpfAuditArch), 1, 0),
		bpfRet(seccompRetKill),
		// load syscall nr (offset 0)
		bpfStmt(unix.BPF_LD|unix.BPF_W|unix.BPF_ABS, 0),
	}

	for i, nr := range numbers {
		jt := uint8(0)
		// after the comparison: if it matches, skip straight to the allow
		// return, which sits len(numbers)-i instructions ahead.
		remaining := len(numbers) - i
		if remaining > 0xff {
			return nil, fmt.Errorf("isolation: seccomp allowlist too large to encode (%d entries)", len(numbers))
		}
		jt = uint8(remaining)
		prog = append(prog, bpfJump(unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K, uint32(nr), jt, 0))
	}
	prog = append(prog, bpfRet(seccompRetKill))
	prog = append(prog, bpfRet(seccompRetAllow))

	return prog, nil
}

func bpfStmt(code uint16, k uint32) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: 0, Jf: 0, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

func bpfRet(k uint32) unix.SockFilter {
	return unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, Jt: 0, Jf: 0, K: k}
}

// InstallSeccompFilter applies prog as the calling process's seccomp-BPF
// filter via prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, ...). It must run
// before the process execve's into the command it's meant to confine,
// since the filter only governs syscalls made after it's installed.
func InstallSeccompFilter(prog []unix.SockFilter) error {
	if len(prog) == 0 {
		return fmt.Errorf("isolation: empty seccomp program")
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("isolation: set no_new_privs: %w", err)
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}
	if err := unix.Prctl(unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&fprog)), 0, 0); err != nil {
		return fmt.Errorf("isolation: install seccomp filter: %w", err)
	}
	return nil
}

// InstallSeccompFilterFromFD reads a raw sock_filter byte stream (the
// wire format seccompFilterFile writes) from fd and installs it via
// InstallSeccompFilter. This is the pre-exec hook the non-namespaced
// exec path runs through its re-exec helper, since there's no bwrap to
// hand the filter fd to on bwrap's own --seccomp flag.
func InstallSeccompFilterFromFD(fd int) error {
	f := os.NewFile(uintptr(fd), "cave-seccomp-filter")
	if f == nil {
		return fmt.Errorf("isolation: fd %d is not a valid file", fd)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("isolation: read seccomp filter fd: %w", err)
	}
	if len(data) == 0 || len(data)%8 != 0 {
		return fmt.Errorf("isolation: malformed seccomp filter stream (%d bytes)", len(data))
	}

	prog := make([]unix.SockFilter, len(data)/8)
	for i := range prog {
		b := data[i*8 : i*8+8]
		prog[i] = unix.SockFilter{
			Code: uint16(b[0]) | uint16(b[1])<<8,
			Jt:   b[2],
			Jf:   b[3],
			K:    uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24,
		}
	}
	return InstallSeccompFilter(prog)
}
