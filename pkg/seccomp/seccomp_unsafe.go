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

package seccomp

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/openbraille/brld/pkg/abi/linux"
)

// SetFilter installs the given BPF program.
func SetFilter(instrs []linux.BPFInstruction) error {
	if len(instrs) == 0 {
		return fmt.Errorf("refusing to install an empty filter program")
	}
	// PR_SET_NO_NEW_PRIVS is required in order to enable seccomp, and is
	// specific to the calling thread, so the prctl and the installation call
	// must happen on the same thread. See seccomp(2).
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if _, _, errno := unix.RawSyscall6(unix.SYS_PRCTL, linux.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	sockProg := linux.NewSockFprog(instrs)
	return installFilter()(&sockProg)
}

type installFunc func(*linux.SockFprog) error

var (
	installOnce   sync.Once
	installChosen installFunc
)

// installFilter returns the installation strategy, chosen once per process:
// seccomp(2) where the kernel has it, otherwise prctl(PR_SET_SECCOMP). Both
// take the same sock_fprog.
func installFilter() installFunc {
	installOnce.Do(func() {
		if seccompSyscallSupported() {
			installChosen = installSeccomp
			logrus.Debug("seccomp: installing via seccomp(2)")
		} else {
			installChosen = installPrctl
			logrus.Debug("seccomp: seccomp(2) unavailable, installing via prctl(2)")
		}
	})
	return installChosen
}

func installSeccomp(prog *linux.SockFprog) error {
	tid, errno := seccomp(linux.SECCOMP_SET_MODE_FILTER, linux.SECCOMP_FILTER_FLAG_TSYNC, unsafe.Pointer(prog))
	if errno != 0 {
		return fmt.Errorf("seccomp(SECCOMP_SET_MODE_FILTER): %w", errno)
	}
	// With SECCOMP_FILTER_FLAG_TSYNC a nonzero return is the ID of the
	// thread that could not be synchronized. See seccomp(2).
	if tid != 0 {
		return fmt.Errorf("seccomp: couldn't synchronize filter to TID %d", tid)
	}
	return nil
}

func installPrctl(prog *linux.SockFprog) error {
	if _, _, errno := unix.RawSyscall6(unix.SYS_PRCTL, linux.PR_SET_SECCOMP, linux.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(prog)), 0, 0, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_SECCOMP): %w", errno)
	}
	return nil
}

// seccompSyscallSupported reports whether the kernel implements seccomp(2)
// at all. The probe operation touches no process state.
func seccompSyscallSupported() bool {
	action := uint32(linux.SECCOMP_RET_ALLOW)
	_, errno := seccomp(linux.SECCOMP_GET_ACTION_AVAIL, 0, unsafe.Pointer(&action))
	return errno != unix.ENOSYS
}

// actionAvailable reports whether the kernel supports returning the given
// action from a filter. Overridable for tests, which run without a kernel
// to ask.
var actionAvailable = func(action linux.BPFAction) bool {
	act := uint32(action)
	_, errno := seccomp(linux.SECCOMP_GET_ACTION_AVAIL, 0, unsafe.Pointer(&act))
	return errno == 0
}

// seccomp calls seccomp(2).
func seccomp(op, flags uint32, ptr unsafe.Pointer) (uintptr, unix.Errno) {
	n, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, uintptr(op), uintptr(flags), uintptr(ptr))
	return n, errno
}
