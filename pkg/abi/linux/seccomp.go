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

package linux

import "fmt"

// Seccomp constants, from include/uapi/linux/seccomp.h.
const (
	SECCOMP_MODE_NONE   = 0
	SECCOMP_MODE_FILTER = 2

	SECCOMP_SET_MODE_FILTER  = 1
	SECCOMP_GET_ACTION_AVAIL = 2

	SECCOMP_FILTER_FLAG_TSYNC = 1

	SECCOMP_RET_ACTION_FULL = 0xffff0000
	SECCOMP_RET_DATA        = 0x0000ffff
)

// BPFAction is a value returned by a seccomp filter program for a matched
// system call.
type BPFAction uint32

// These are the allowed return values for a seccomp filter program, from
// include/uapi/linux/seccomp.h.
const (
	SECCOMP_RET_KILL_PROCESS BPFAction = 0x80000000
	SECCOMP_RET_KILL_THREAD  BPFAction = 0x00000000
	SECCOMP_RET_TRAP         BPFAction = 0x00030000
	SECCOMP_RET_ERRNO        BPFAction = 0x00050000
	SECCOMP_RET_TRACE        BPFAction = 0x7ff00000
	SECCOMP_RET_LOG          BPFAction = 0x7ffc0000
	SECCOMP_RET_ALLOW        BPFAction = 0x7fff0000
)

// WithReturnCode sets the lower 16 bits of the action, which the kernel
// interprets as an errno for SECCOMP_RET_ERRNO and as tracer data for
// SECCOMP_RET_TRACE.
func (a BPFAction) WithReturnCode(code uint16) BPFAction {
	return BPFAction(uint32(a)&SECCOMP_RET_ACTION_FULL | uint32(code))
}

// ReturnCode returns the lower 16 bits of the action.
func (a BPFAction) ReturnCode() uint16 {
	return uint16(uint32(a) & SECCOMP_RET_DATA)
}

// String implements fmt.Stringer.
func (a BPFAction) String() string {
	switch a & SECCOMP_RET_ACTION_FULL {
	case SECCOMP_RET_KILL_PROCESS:
		return "kill process"
	case SECCOMP_RET_KILL_THREAD:
		return "kill thread"
	case SECCOMP_RET_TRAP:
		return fmt.Sprintf("trap (%d)", a.ReturnCode())
	case SECCOMP_RET_ERRNO:
		return fmt.Sprintf("errno (%d)", a.ReturnCode())
	case SECCOMP_RET_TRACE:
		return fmt.Sprintf("trace (%d)", a.ReturnCode())
	case SECCOMP_RET_LOG:
		return "log"
	case SECCOMP_RET_ALLOW:
		return "allow"
	}
	return fmt.Sprintf("invalid action: %#x", uint32(a))
}

// SockFprog is sock_fprog, from include/uapi/linux/filter.h. It is the
// {length, pointer} pair both installation system calls accept.
type SockFprog struct {
	Len    uint16
	pad    [6]byte
	Filter *BPFInstruction
}

// NewSockFprog wraps a filter program for installation. instrs must be
// non-empty, and the caller must keep it alive for the duration of the
// installing system call.
func NewSockFprog(instrs []BPFInstruction) SockFprog {
	return SockFprog{
		Len:    uint16(len(instrs)),
		Filter: &instrs[0],
	}
}
