// Copyright 2024 The brld Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filter declares the daemon's system call policy and installs it.
//
// The tables below are everything the daemon needs after initialization:
// device and console I/O, the API socket, memory management, signals, and
// timekeeping. ioctl and socket are constrained further by argument value.
package filter

import (
	"golang.org/x/sys/unix"

	"github.com/openbraille/brld/pkg/abi/linux"
	"github.com/openbraille/brld/pkg/seccomp"
)

func sys(nr int) seccomp.ValueDescriptor {
	return seccomp.ValueDescriptor{Value: uint32(nr)}
}

func sysArg(nr int, index uint8, group seccomp.ValueGroup) seccomp.ValueDescriptor {
	return seccomp.ValueDescriptor{Value: uint32(nr), Arg: &seccomp.ArgumentDescriptor{Index: index, Group: group}}
}

func val(v uint32) seccomp.ValueDescriptor {
	return seccomp.ValueDescriptor{Value: v}
}

// consoleIoctls is checked against ioctl's request argument. It covers the
// tty settings the screen reader needs, the virtual console keyboard and LED
// state, and the beeper.
var consoleIoctls = seccomp.ValueGroup{
	Name: "ioctl-requests",
	Entries: []seccomp.ValueDescriptor{
		val(unix.TCGETS),
		val(unix.TCSETS),
		val(unix.TCSETSW),
		val(unix.TIOCGWINSZ),
		val(unix.TIOCLINUX),
		val(unix.TIOCINQ),
		val(linux.KIOCSOUND),
		val(linux.KDMKTONE),
		val(linux.KDGETMODE),
		val(linux.KDGKBMODE),
		val(linux.KDSKBMODE),
		val(linux.KDGKBLED),
		val(linux.KDSKBLED),
	},
}

// prctlRequests is checked against prctl's option argument. The filter is
// installed before capabilities are dropped, so the prctl requests the drop
// performs must themselves pass it.
var prctlRequests = seccomp.ValueGroup{
	Name: "prctl-requests",
	Entries: []seccomp.ValueDescriptor{
		val(unix.PR_CAPBSET_READ),
		val(unix.PR_CAPBSET_DROP),
		val(unix.PR_CAP_AMBIENT),
	},
}

// inetSocketTypes restricts API sockets to stream sockets, with or without
// the creation-time flag bits.
var inetSocketTypes = seccomp.ValueGroup{
	Name: "socket-types",
	Entries: []seccomp.ValueDescriptor{
		val(unix.SOCK_STREAM),
		val(unix.SOCK_STREAM | unix.SOCK_CLOEXEC),
		val(unix.SOCK_STREAM | unix.SOCK_CLOEXEC | unix.SOCK_NONBLOCK),
	},
}

// socketFamilies is checked against socket's domain argument. Local sockets
// are unrestricted; inet sockets must also pass the type check above.
var socketFamilies = seccomp.ValueGroup{
	Name: "socket-families",
	Entries: []seccomp.ValueDescriptor{
		val(unix.AF_UNIX),
		sysArg(unix.AF_INET, 1, inetSocketTypes),
		sysArg(unix.AF_INET6, 1, inetSocketTypes),
	},
}

var allowedSyscalls = seccomp.ValueGroup{
	Name: "brld",
	Entries: []seccomp.ValueDescriptor{
		sys(unix.SYS_ACCEPT4),
		sys(unix.SYS_BIND),
		sys(unix.SYS_BRK),
		sys(unix.SYS_CAPGET),
		sys(unix.SYS_CAPSET),
		sys(unix.SYS_CLOCK_GETTIME),
		sys(unix.SYS_CLOCK_NANOSLEEP),
		sys(unix.SYS_CLOSE),
		sys(unix.SYS_CONNECT),
		sys(unix.SYS_EPOLL_CREATE1),
		sys(unix.SYS_EPOLL_CTL),
		sys(unix.SYS_EPOLL_PWAIT),
		sys(unix.SYS_EXIT),
		sys(unix.SYS_EXIT_GROUP),
		sys(unix.SYS_FCNTL),
		sys(unix.SYS_FSTAT),
		sys(unix.SYS_FUTEX),
		sys(unix.SYS_GETPID),
		sys(unix.SYS_GETRANDOM),
		sys(unix.SYS_GETSOCKNAME),
		sys(unix.SYS_GETSOCKOPT),
		sys(unix.SYS_GETTID),
		sysArg(unix.SYS_IOCTL, 1, consoleIoctls),
		sys(unix.SYS_LISTEN),
		sys(unix.SYS_LSEEK),
		sys(unix.SYS_MADVISE),
		sys(unix.SYS_MMAP),
		sys(unix.SYS_MPROTECT),
		sys(unix.SYS_MREMAP),
		sys(unix.SYS_MUNMAP),
		sys(unix.SYS_NANOSLEEP),
		sys(unix.SYS_OPENAT),
		sys(unix.SYS_PPOLL),
		sysArg(unix.SYS_PRCTL, 0, prctlRequests),
		sys(unix.SYS_READ),
		sys(unix.SYS_READV),
		sys(unix.SYS_RECVMSG),
		sys(unix.SYS_RESTART_SYSCALL),
		sys(unix.SYS_RT_SIGACTION),
		sys(unix.SYS_RT_SIGPROCMASK),
		sys(unix.SYS_RT_SIGRETURN),
		sys(unix.SYS_SCHED_YIELD),
		sys(unix.SYS_SENDMSG),
		sys(unix.SYS_SETSOCKOPT),
		sys(unix.SYS_SHUTDOWN),
		sys(unix.SYS_SIGALTSTACK),
		sysArg(unix.SYS_SOCKET, 0, socketFamilies),
		sys(unix.SYS_TGKILL),
		sys(unix.SYS_UNAME),
		sys(unix.SYS_WRITE),
		sys(unix.SYS_WRITEV),
	},
}

// Rules returns the daemon's syscall policy. Used by the filter dump tool.
func Rules() seccomp.ValueGroup {
	return allowedSyscalls
}

// Install compiles the policy for the given mode and loads it into the
// kernel.
func Install(mode seccomp.Mode) error {
	return seccomp.Install(allowedSyscalls, mode)
}
