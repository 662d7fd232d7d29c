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

// Package seccomp compiles declarative tables of permitted system calls,
// and for some calls permitted argument values, into classic-BPF seccomp
// programs and installs them. Only little endian systems are supported.
package seccomp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openbraille/brld/pkg/abi/linux"
	"github.com/openbraille/brld/pkg/bpf"
)

// skipOneInst is the offset to take for skipping one instruction.
const skipOneInst = 1

// ProgramOptions configures the terminal actions of a generated program.
type ProgramOptions struct {
	// DenyAction is returned for events that match no permitted value. It
	// is the program's only fallthrough action.
	DenyAction linux.BPFAction

	// BadArchAction is returned when the event's architecture field does
	// not match the architecture this build targets.
	BadArchAction linux.BPFAction
}

// pendingArgumentCheck is a deferred obligation discovered while compiling a
// value tree: jump is the branch taken when the parent value matched, and it
// must land on a block that checks the named argument against arg.Group.
type pendingArgumentCheck struct {
	arg  *ArgumentDescriptor
	jump bpf.JumpRef
}

// compiler holds the state shared by one program assembly: the instruction
// buffer, the deferred deny jumps, and the argument work queue.
type compiler struct {
	program *bpf.ProgramBuilder

	// denyJumps accumulates every jump that must land on the final deny
	// return. They are resolved in one batch right before it is emitted.
	denyJumps []bpf.JumpRef

	// pending is the argument work queue. Draining an entry compiles its
	// nested group, which may append further entries.
	pending []pendingArgumentCheck
}

// BuildProgram compiles the given syscall group into a filter program.
//
// The program layout is fixed: the architecture guard always comes first and
// denies unconditionally on mismatch; then the syscall number is loaded and
// dispatched through a balanced decision tree; then one block per queued
// argument check, each loading its argument slot and dispatching through its
// own tree; and finally the shared deny return. Allow returns are reachable
// only through patched jumps, never by fallthrough.
func BuildProgram(syscalls ValueGroup, opts ProgramOptions) ([]linux.BPFInstruction, error) {
	c := &compiler{program: bpf.NewProgramBuilder()}

	// A = seccomp_data.arch
	// if (A != nativeAuditArch) return badArchAction
	c.program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetArch)
	c.program.AddJump(bpf.Jmp|bpf.Jeq|bpf.K, nativeAuditArch, skipOneInst, 0)
	c.program.AddStmt(bpf.Ret|bpf.K, uint32(opts.BadArchAction))

	// A = seccomp_data.nr
	c.program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetNR)
	if err := c.compileGroup(syscalls); err != nil {
		return nil, fmt.Errorf("compiling group %q: %w", syscalls.Name, err)
	}

	// Drain the argument work queue. Entries queued while draining are
	// picked up by the same loop, so multi-level argument dispatch settles
	// here too.
	for len(c.pending) > 0 {
		check := c.pending[0]
		c.pending = c.pending[1:]
		if err := c.program.Resolve(check.jump); err != nil {
			return nil, fmt.Errorf("placing argument block for group %q: %w", check.arg.Group.Name, err)
		}
		// A = seccomp_data.args[index] (low word)
		c.program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetArgLow(check.arg.Index))
		if err := c.compileGroup(check.arg.Group); err != nil {
			return nil, fmt.Errorf("compiling group %q: %w", check.arg.Group.Name, err)
		}
	}

	// Nothing matched.
	for _, j := range c.denyJumps {
		if err := c.program.Resolve(j); err != nil {
			return nil, fmt.Errorf("resolving deny jump: %w", err)
		}
	}
	c.denyJumps = nil
	c.program.AddStmt(bpf.Ret|bpf.K, uint32(opts.DenyAction))

	return c.program.Instructions()
}

// compileGroup prepares the group, emits its decision tree, and closes it
// with the group's shared allow return. Jumps out of the tree either land on
// that return, on a queued argument block, or on the final deny return.
func (c *compiler) compileGroup(g ValueGroup) error {
	prepared := g.Prepare()

	var allowJumps []bpf.JumpRef
	if err := c.compileTree(prepared.Entries, &allowJumps); err != nil {
		return err
	}
	for _, j := range allowJumps {
		if err := c.program.Resolve(j); err != nil {
			return err
		}
	}
	c.program.AddStmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW))
	return nil
}

// compileTree emits a balanced decision tree over a prepared slice. Slices
// of three or fewer entries become a linear chain of equality tests ending
// in a jump to the deny return; larger slices split at the midpoint with a
// greater-than test, continue with the lower half in place, and emit the
// upper half afterwards.
//
// The trailing deny jump is emitted for every chain, including one that ends
// up last in its group: when an upper-half subtree follows the chain, the
// jump is what keeps non-members from falling into it, and in the last
// position it is one unreachable-in-practice unconditional jump.
func (c *compiler) compileTree(entries []ValueDescriptor, allowJumps *[]bpf.JumpRef) error {
	if len(entries) <= 3 {
		for i := range entries {
			c.matchValue(&entries[i], allowJumps)
		}
		c.denyJumps = append(c.denyJumps, c.program.EmitJump(bpf.Jmp|bpf.Ja, 0, bpf.JumpDirect))
		return nil
	}

	mid := len(entries) / 2
	// (A > entries[mid]) ? upper half : continue here
	upper := c.program.EmitJump(bpf.Jmp|bpf.Jgt|bpf.K, entries[mid].Value, bpf.JumpTrue)
	c.matchValue(&entries[mid], allowJumps)
	if err := c.compileTree(entries[:mid], allowJumps); err != nil {
		return err
	}
	if err := c.program.Resolve(upper); err != nil {
		return err
	}
	return c.compileTree(entries[mid+1:], allowJumps)
}

// matchValue emits the equality test for one entry. A plain value branches
// to the group's shared allow return; a value carrying an argument
// descriptor branches to a not-yet-emitted argument block instead, recorded
// on the work queue.
func (c *compiler) matchValue(v *ValueDescriptor, allowJumps *[]bpf.JumpRef) {
	j := c.program.EmitJump(bpf.Jmp|bpf.Jeq|bpf.K, v.Value, bpf.JumpTrue)
	if v.Arg != nil {
		c.pending = append(c.pending, pendingArgumentCheck{arg: v.Arg, jump: j})
		return
	}
	*allowJumps = append(*allowJumps, j)
}

// Install compiles the syscall policy for the given mode and hands the
// result to the kernel. Mode no is a no-op: no program is built and no
// installation call is made.
//
// Failures are reported to the caller, which is expected to treat the
// filter as defense in depth and continue without one.
func Install(syscalls ValueGroup, mode Mode) error {
	if mode == ModeNo {
		logrus.Debug("seccomp: filtering disabled, not installing")
		return nil
	}

	opts := mode.ProgramOptions()
	logrus.Infof("seccomp: installing filter for %d syscalls (deny action %v)", len(syscalls.Entries), opts.DenyAction)

	instrs, err := BuildProgram(syscalls, opts)
	if err != nil {
		return fmt.Errorf("building seccomp program: %w", err)
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		dump, err := bpf.DecodeProgram(instrs)
		if err != nil {
			dump = fmt.Sprintf("error: %v", err)
		}
		logrus.Debugf("seccomp: program dump:\n%s", dump)
	}

	if err := SetFilter(instrs); err != nil {
		return fmt.Errorf("installing seccomp program: %w", err)
	}
	logrus.Info("seccomp: filter installed")
	return nil
}
