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

package bpf

import (
	"errors"
	"fmt"
	"math"

	"github.com/openbraille/brld/pkg/abi/linux"
)

// Branch fields of a placeholder jump hold these sentinels until the jump is
// resolved. A resolved offset may legitimately equal the conditional
// sentinel, but never before resolution, since placeholders are patched
// exactly once.
const (
	placeholderTarget       = math.MaxUint8
	placeholderDirectTarget = math.MaxUint32
)

// ErrProgramTooLarge is returned when a program would exceed the platform
// instruction-count limit. The program is never truncated.
var ErrProgramTooLarge = fmt.Errorf("program exceeds maximum of %d instructions", MaxInstructions)

// JumpKind selects which branch field of a placeholder instruction a
// JumpRef resolves: the true branch, the false branch, or the K field of an
// unconditional jump.
type JumpKind int

// Valid jump kinds.
const (
	JumpDirect JumpKind = iota
	JumpTrue
	JumpFalse
)

// JumpRef identifies one unresolved branch in a program under construction.
// It carries no meaning after Resolve patches its placeholder.
type JumpRef struct {
	index int
	kind  JumpKind
}

// ProgramBuilder accumulates instructions and resolves forward jumps to
// relative offsets once their targets are known. The zero-size program grows
// as instructions are appended; exceeding MaxInstructions is a sticky build
// failure reported by Instructions.
type ProgramBuilder struct {
	instructions []linux.BPFInstruction

	// unresolved counts emitted placeholder jumps not yet resolved.
	unresolved int

	// err is the first append or resolution failure. Once set, the builder
	// produces no program.
	err error
}

// NewProgramBuilder creates a new ProgramBuilder instance.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{}
}

// Len returns the current number of instructions.
func (b *ProgramBuilder) Len() int {
	return len(b.instructions)
}

func (b *ProgramBuilder) append(inst linux.BPFInstruction) {
	if b.err != nil {
		return
	}
	if len(b.instructions) >= MaxInstructions {
		b.err = ErrProgramTooLarge
		return
	}
	b.instructions = append(b.instructions, inst)
}

// AddStmt appends a new statement to the program.
func (b *ProgramBuilder) AddStmt(code uint16, k uint32) {
	b.append(Stmt(code, k))
}

// AddJump appends a jump whose offsets are already known.
func (b *ProgramBuilder) AddJump(code uint16, k uint32, jt, jf uint8) {
	b.append(Jump(code, k, jt, jf))
}

// EmitJump appends a placeholder jump and returns a JumpRef recording which
// of its fields must be patched. For JumpDirect the code must be an
// unconditional jump; for JumpTrue and JumpFalse it must be a conditional
// one, and the other branch falls through.
func (b *ProgramBuilder) EmitJump(code uint16, k uint32, kind JumpKind) JumpRef {
	switch kind {
	case JumpDirect:
		b.append(Jump(code, placeholderDirectTarget, 0, 0))
	case JumpTrue:
		b.append(Jump(code, k, placeholderTarget, 0))
	case JumpFalse:
		b.append(Jump(code, k, 0, placeholderTarget))
	}
	b.unresolved++
	return JumpRef{index: len(b.instructions) - 1, kind: kind}
}

// Resolve patches the placeholder identified by j to branch to the current
// end of the program, i.e. to the next instruction appended.
func (b *ProgramBuilder) Resolve(j JumpRef) error {
	if b.err != nil {
		return b.err
	}
	if j.index < 0 || j.index >= len(b.instructions) {
		return b.fail(fmt.Errorf("jump at %d is outside the program", j.index))
	}
	// The target is the end of the program, so the offset is always forward;
	// backward jumps are unrepresentable by construction.
	offset := len(b.instructions) - j.index - 1
	inst := b.instructions[j.index]
	switch j.kind {
	case JumpDirect:
		if inst.K != placeholderDirectTarget {
			return b.fail(fmt.Errorf("instruction %d is not an unresolved direct jump", j.index))
		}
		inst.K = uint32(offset)
	case JumpTrue:
		if inst.JumpIfTrue != placeholderTarget {
			return b.fail(fmt.Errorf("instruction %d is not an unresolved true branch", j.index))
		}
		if offset > math.MaxUint8 {
			return b.fail(fmt.Errorf("conditional jump from %d spans %d instructions, limit is %d", j.index, offset, math.MaxUint8))
		}
		inst.JumpIfTrue = uint8(offset)
	case JumpFalse:
		if inst.JumpIfFalse != placeholderTarget {
			return b.fail(fmt.Errorf("instruction %d is not an unresolved false branch", j.index))
		}
		if offset > math.MaxUint8 {
			return b.fail(fmt.Errorf("conditional jump from %d spans %d instructions, limit is %d", j.index, offset, math.MaxUint8))
		}
		inst.JumpIfFalse = uint8(offset)
	default:
		return b.fail(fmt.Errorf("unknown jump kind %d", j.kind))
	}
	b.instructions[j.index] = inst
	b.unresolved--
	return nil
}

func (b *ProgramBuilder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// Instructions returns the finished program. It fails if any append or
// resolution failed, or if placeholder jumps remain unresolved.
func (b *ProgramBuilder) Instructions() ([]linux.BPFInstruction, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.unresolved != 0 {
		return nil, errors.New("program has unresolved jumps")
	}
	return b.instructions, nil
}
