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
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/openbraille/brld/pkg/abi/linux"
)

// Mode selects what happens to a system call the filter does not permit.
type Mode int

// Supported modes.
const (
	// ModeNo disables the subsystem: no program is built or installed.
	ModeNo Mode = iota

	// ModeLog records denied calls but permits them, where the kernel
	// supports it.
	ModeLog

	// ModeFail makes denied calls return EPERM to the caller.
	ModeFail

	// ModeKill terminates the process on a denied call.
	ModeKill
)

// DefaultMode is the fallback for unrecognized mode names. Failing denied
// calls is preferred over silently disabling the filter on a typo.
const DefaultMode = ModeFail

// ParseMode maps a configuration string to a Mode. Empty and unknown names
// fall back to DefaultMode with a warning; disabling the filter requires an
// explicit "no".
func ParseMode(name string) Mode {
	if name == "" {
		logrus.Warnf("seccomp: filter mode not set, using %v", DefaultMode)
		return DefaultMode
	}
	switch strings.ToLower(name) {
	case "no":
		return ModeNo
	case "log":
		return ModeLog
	case "fail":
		return ModeFail
	case "kill":
		return ModeKill
	}
	logrus.Warnf("seccomp: unknown filter mode %q, using %v", name, DefaultMode)
	return DefaultMode
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeNo:
		return "no"
	case ModeLog:
		return "log"
	case ModeFail:
		return "fail"
	case ModeKill:
		return "kill"
	}
	return "unknown"
}

// denyAction maps the mode to its BPF action, degrading where the running
// kernel lacks support: log falls back to failing, and kill-process to
// kill-thread.
func (m Mode) denyAction() linux.BPFAction {
	switch m {
	case ModeLog:
		if actionAvailable(linux.SECCOMP_RET_LOG) {
			return linux.SECCOMP_RET_LOG
		}
		logrus.Warn("seccomp: SECCOMP_RET_LOG not supported by this kernel, denied syscalls will fail instead")
	case ModeKill:
		if actionAvailable(linux.SECCOMP_RET_KILL_PROCESS) {
			return linux.SECCOMP_RET_KILL_PROCESS
		}
		return linux.SECCOMP_RET_KILL_THREAD
	}
	return linux.SECCOMP_RET_ERRNO.WithReturnCode(uint16(unix.EPERM))
}

// ProgramOptions returns the terminal actions for this mode. The
// architecture guard uses the same action as the deny fallthrough.
func (m Mode) ProgramOptions() ProgramOptions {
	deny := m.denyAction()
	return ProgramOptions{
		DenyAction:    deny,
		BadArchAction: deny,
	}
}
