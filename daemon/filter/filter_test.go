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

package filter

import (
	"encoding/binary"
	"runtime"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/openbraille/brld/pkg/abi/linux"
	"github.com/openbraille/brld/pkg/bpf"
	"github.com/openbraille/brld/pkg/seccomp"
)

func nativeArch(t *testing.T) uint32 {
	t.Helper()
	switch runtime.GOARCH {
	case "amd64":
		return linux.AUDIT_ARCH_X86_64
	case "arm64":
		return linux.AUDIT_ARCH_AARCH64
	}
	t.Fatalf("unsupported architecture %q", runtime.GOARCH)
	return 0
}

func event(nr uint32, arch uint32, args ...uint64) bpf.Input {
	in := make([]byte, 64)
	binary.NativeEndian.PutUint32(in[0:], nr)
	binary.NativeEndian.PutUint32(in[4:], arch)
	for i, arg := range args {
		binary.NativeEndian.PutUint64(in[16+8*i:], arg)
	}
	return in
}

func TestPolicySimulation(t *testing.T) {
	opts := seccomp.ProgramOptions{
		DenyAction:    linux.SECCOMP_RET_TRAP,
		BadArchAction: linux.SECCOMP_RET_TRAP,
	}
	instrs, err := seccomp.BuildProgram(Rules(), opts)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	p, err := bpf.Compile(instrs)
	if err != nil {
		t.Fatalf("bpf.Compile() failed: %v", err)
	}
	arch := nativeArch(t)

	for _, test := range []struct {
		desc  string
		input bpf.Input
		want  linux.BPFAction
	}{
		{
			desc:  "read allowed",
			input: event(unix.SYS_READ, arch),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "ptrace denied",
			input: event(unix.SYS_PTRACE, arch),
			want:  linux.SECCOMP_RET_TRAP,
		},
		{
			desc:  "tty settings ioctl allowed",
			input: event(unix.SYS_IOCTL, arch, 0, unix.TCGETS),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "input queue length ioctl allowed",
			input: event(unix.SYS_IOCTL, arch, 0, unix.TIOCINQ),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "beeper ioctl allowed",
			input: event(unix.SYS_IOCTL, arch, 0, linux.KIOCSOUND),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "unlisted ioctl request denied",
			input: event(unix.SYS_IOCTL, arch, 0, uint64(unix.TIOCSTI)),
			want:  linux.SECCOMP_RET_TRAP,
		},
		{
			desc:  "local socket allowed regardless of type",
			input: event(unix.SYS_SOCKET, arch, unix.AF_UNIX, unix.SOCK_DGRAM),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "inet stream socket allowed",
			input: event(unix.SYS_SOCKET, arch, unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC),
			want:  linux.SECCOMP_RET_ALLOW,
		},
		{
			desc:  "inet datagram socket denied",
			input: event(unix.SYS_SOCKET, arch, unix.AF_INET, unix.SOCK_DGRAM),
			want:  linux.SECCOMP_RET_TRAP,
		},
		{
			desc:  "packet socket denied",
			input: event(unix.SYS_SOCKET, arch, unix.AF_PACKET, unix.SOCK_RAW),
			want:  linux.SECCOMP_RET_TRAP,
		},
		{
			desc:  "foreign architecture denied",
			input: event(unix.SYS_READ, arch+1),
			want:  linux.SECCOMP_RET_TRAP,
		},
		{
			desc:  "prctl with unlisted option denied",
			input: event(unix.SYS_PRCTL, arch, unix.PR_SET_DUMPABLE),
			want:  linux.SECCOMP_RET_TRAP,
		},
	} {
		got, err := bpf.Exec(p, test.input)
		if err != nil {
			t.Errorf("%s: bpf.Exec() failed: %v", test.desc, err)
			continue
		}
		if got != uint32(test.want) {
			t.Errorf("%s: got %#x, want %#x", test.desc, got, uint32(test.want))
		}
	}
}

// TestCapabilityDropRunsUnderFilter checks that the syscalls the
// post-install capability drop performs are themselves permitted by the
// policy. The filter is installed before capabilities are cleared, so a
// policy missing any of these would make the drop fail or kill the daemon,
// depending on the mode.
func TestCapabilityDropRunsUnderFilter(t *testing.T) {
	opts := seccomp.ProgramOptions{
		DenyAction:    linux.SECCOMP_RET_TRAP,
		BadArchAction: linux.SECCOMP_RET_TRAP,
	}
	instrs, err := seccomp.BuildProgram(Rules(), opts)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	p, err := bpf.Compile(instrs)
	if err != nil {
		t.Fatalf("bpf.Compile() failed: %v", err)
	}
	arch := nativeArch(t)

	for _, test := range []struct {
		desc  string
		input bpf.Input
	}{
		{"capget", event(unix.SYS_CAPGET, arch)},
		{"capset", event(unix.SYS_CAPSET, arch)},
		{"prctl bounding set read", event(unix.SYS_PRCTL, arch, unix.PR_CAPBSET_READ)},
		{"prctl bounding set drop", event(unix.SYS_PRCTL, arch, unix.PR_CAPBSET_DROP)},
		{"prctl ambient clear", event(unix.SYS_PRCTL, arch, unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL)},
	} {
		got, err := bpf.Exec(p, test.input)
		if err != nil {
			t.Errorf("%s: bpf.Exec() failed: %v", test.desc, err)
			continue
		}
		if got != uint32(linux.SECCOMP_RET_ALLOW) {
			t.Errorf("%s: got %#x, want allow", test.desc, got)
		}
	}
}

// TestPolicyCompiles is the smoke test run for every mode's option set.
func TestPolicyCompiles(t *testing.T) {
	for _, opts := range []seccomp.ProgramOptions{
		{DenyAction: linux.SECCOMP_RET_ERRNO.WithReturnCode(uint16(unix.EPERM)), BadArchAction: linux.SECCOMP_RET_ERRNO.WithReturnCode(uint16(unix.EPERM))},
		{DenyAction: linux.SECCOMP_RET_LOG, BadArchAction: linux.SECCOMP_RET_LOG},
		{DenyAction: linux.SECCOMP_RET_KILL_PROCESS, BadArchAction: linux.SECCOMP_RET_KILL_PROCESS},
		{DenyAction: linux.SECCOMP_RET_KILL_THREAD, BadArchAction: linux.SECCOMP_RET_KILL_THREAD},
	} {
		instrs, err := seccomp.BuildProgram(Rules(), opts)
		if err != nil {
			t.Fatalf("BuildProgram(%v) failed: %v", opts.DenyAction, err)
		}
		if _, err := bpf.Compile(instrs); err != nil {
			t.Errorf("bpf.Compile(%v) failed: %v", opts.DenyAction, err)
		}
	}
}
