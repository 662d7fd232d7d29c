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
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// The offsets are based on the following struct in include/linux/seccomp.h.
//
//	struct seccomp_data {
//		int nr;
//		__u32 arch;
//		__u64 instruction_pointer;
//		__u64 args[6];
//	};
const (
	seccompDataOffsetNR     = 0
	seccompDataOffsetArch   = 4
	seccompDataOffsetIPLow  = 8
	seccompDataOffsetIPHigh = 12
	seccompDataOffsetArgs   = 16
)

// seccompDataOffsetArgLow is the offset of the low word of argument i.
// Policy values are 32 bits, so only the low word of the 64-bit argument
// slot is inspected.
func seccompDataOffsetArgLow(i uint8) uint32 {
	return seccompDataOffsetArgs + uint32(i)*8
}

// ArgumentDescriptor binds a further ValueGroup to a syscall-argument slot:
// a value carrying one matches only if the named argument is a member of the
// nested group.
type ArgumentDescriptor struct {
	// Index is the argument slot to inspect, 0 through 5.
	Index uint8

	// Group holds the permitted values for that slot.
	Group ValueGroup
}

// ValueDescriptor is one permitted 32-bit value: a syscall number in the
// top-level group, or an argument value in a nested one. A non-nil Arg adds
// the obligation to also check another argument slot.
type ValueDescriptor struct {
	Value uint32
	Arg   *ArgumentDescriptor
}

// ValueGroup is a named set of permitted values checked at one inspection
// point. Compilation operates on prepared groups: entries sorted ascending
// by value and strictly increasing.
type ValueGroup struct {
	Name    string
	Entries []ValueDescriptor
}

// Prepare returns a copy of the group with entries sorted ascending and
// duplicates compacted. Each removed duplicate is logged at warning level
// since it indicates a policy table mistake. Prepare is deterministic and
// idempotent; the receiver is not modified.
func (g ValueGroup) Prepare() ValueGroup {
	entries := make([]ValueDescriptor, len(g.Entries))
	copy(entries, g.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Value < entries[j].Value })

	out := entries[:0]
	for i := range entries {
		if len(out) > 0 && out[len(out)-1].Value == entries[i].Value {
			logrus.Warnf("seccomp: duplicate value %#x in group %q", entries[i].Value, g.Name)
			continue
		}
		out = append(out, entries[i])
	}
	return ValueGroup{Name: g.Name, Entries: out}
}

// String implements fmt.Stringer. It is used for debug logging only.
func (g ValueGroup) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s{", g.Name)
	for i, e := range g.Entries {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%#x", e.Value)
		if e.Arg != nil {
			fmt.Fprintf(&sb, "->arg%d:%s", e.Arg.Index, e.Arg.Group.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}
