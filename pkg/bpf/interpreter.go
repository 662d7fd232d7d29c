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
	"fmt"

	"github.com/openbraille/brld/pkg/abi/linux"
)

// Possible values for Error.Code.
const (
	// InvalidEndOfProgram indicates that the last instruction of a program
	// is not a return, or that execution ran off the end of the program.
	InvalidEndOfProgram = iota

	// InvalidInstructionCount indicates that a program has zero instructions
	// or more than MaxInstructions instructions.
	InvalidInstructionCount

	// InvalidJumpTarget indicates that a program contains a jump whose
	// target is outside of the program's bounds.
	InvalidJumpTarget

	// InvalidLoad indicates that a program executed a load outside its
	// input data.
	InvalidLoad

	// InvalidOpcode indicates that a program contains an instruction with
	// an opcode this interpreter does not implement. The filter compiler
	// emits only absolute word loads, constant comparisons, unconditional
	// jumps, constant masking, and returns; anything else is rejected.
	InvalidOpcode
)

// Error is an error encountered while validating or executing a BPF program.
type Error struct {
	// Code indicates the kind of error that occurred.
	Code int

	// PC is the instruction index at which the error occurred.
	PC int
}

func (e Error) codeString() string {
	switch e.Code {
	case InvalidEndOfProgram:
		return "last instruction must be a return"
	case InvalidInstructionCount:
		return "invalid number of instructions"
	case InvalidJumpTarget:
		return "jump target out of bounds"
	case InvalidLoad:
		return "load out of bounds"
	case InvalidOpcode:
		return "unsupported instruction opcode"
	default:
		return "unknown error"
	}
}

// Error implements error.Error.
func (e Error) Error() string {
	return fmt.Sprintf("at l%d: %s", e.PC, e.codeString())
}

// Program is a BPF program that has been validated for consistency.
type Program struct {
	instructions []linux.BPFInstruction
}

// Length returns the number of instructions in the program.
func (p Program) Length() int {
	return len(p.instructions)
}

// Compile performs validation on a sequence of BPF instructions before
// wrapping them in a Program.
func Compile(insns []linux.BPFInstruction) (Program, error) {
	if len(insns) == 0 || len(insns) > MaxInstructions {
		return Program{}, Error{InvalidInstructionCount, len(insns)}
	}
	if last := insns[len(insns)-1]; last.OpCode != Ret|K && last.OpCode != Ret|A {
		return Program{}, Error{InvalidEndOfProgram, len(insns) - 1}
	}
	for pc, i := range insns {
		switch i.OpCode & instructionClassMask {
		case Ld:
			mode := i.OpCode & loadModeMask
			size := i.OpCode & loadSizeMask
			if mode != Imm && mode != Abs {
				return Program{}, Error{InvalidOpcode, pc}
			}
			if size != W && size != H && size != B {
				return Program{}, Error{InvalidOpcode, pc}
			}
		case Alu:
			// Only constant masking is generated, for comparing flag fields.
			if i.OpCode != Alu|And|K {
				return Program{}, Error{InvalidOpcode, pc}
			}
		case Jmp:
			switch i.OpCode & jmpMask {
			case Ja:
				if i.OpCode&srcAluJmpMask != 0 {
					return Program{}, Error{InvalidOpcode, pc}
				}
				// Compare in 64 bits to avoid overflow from a very large K.
				if uint64(pc)+uint64(i.K)+1 >= uint64(len(insns)) {
					return Program{}, Error{InvalidJumpTarget, pc}
				}
			case Jeq, Jgt, Jge, Jset:
				if pc+int(i.JumpIfTrue)+1 >= len(insns) {
					return Program{}, Error{InvalidJumpTarget, pc}
				}
				if pc+int(i.JumpIfFalse)+1 >= len(insns) {
					return Program{}, Error{InvalidJumpTarget, pc}
				}
			default:
				return Program{}, Error{InvalidOpcode, pc}
			}
		case Ret:
			if src := i.OpCode & srcRetMask; src != K && src != A {
				return Program{}, Error{InvalidOpcode, pc}
			}
		default:
			return Program{}, Error{InvalidOpcode, pc}
		}
	}
	return Program{insns}, nil
}

func conditionalJumpOffset(insn linux.BPFInstruction, cond bool) int {
	if cond {
		return int(insn.JumpIfTrue)
	}
	return int(insn.JumpIfFalse)
}

// Exec executes a validated program over the given input and returns its
// return value.
func Exec(p Program, in Input) (uint32, error) {
	ret, _, err := exec(p, in)
	return ret, err
}

// InstrumentedExec is Exec, but additionally reports the number of
// instructions executed, which tests use to check comparison-depth bounds.
func InstrumentedExec(p Program, in Input) (uint32, int, error) {
	return exec(p, in)
}

func exec(p Program, in Input) (uint32, int, error) {
	var acc uint32
	executed := 0
	for pc := 0; pc < len(p.instructions); pc++ {
		executed++
		i := p.instructions[pc]
		switch i.OpCode {
		case Ld | Imm | W:
			acc = i.K
		case Ld | Abs | W:
			val, ok := load32(in, i.K)
			if !ok {
				return 0, executed, Error{InvalidLoad, pc}
			}
			acc = val
		case Ld | Abs | H:
			val, ok := load16(in, i.K)
			if !ok {
				return 0, executed, Error{InvalidLoad, pc}
			}
			acc = uint32(val)
		case Ld | Abs | B:
			val, ok := load8(in, i.K)
			if !ok {
				return 0, executed, Error{InvalidLoad, pc}
			}
			acc = uint32(val)
		case Alu | And | K:
			acc &= i.K
		case Jmp | Ja:
			pc += int(i.K)
		case Jmp | Jeq | K:
			pc += conditionalJumpOffset(i, acc == i.K)
		case Jmp | Jgt | K:
			pc += conditionalJumpOffset(i, acc > i.K)
		case Jmp | Jge | K:
			pc += conditionalJumpOffset(i, acc >= i.K)
		case Jmp | Jset | K:
			pc += conditionalJumpOffset(i, acc&i.K != 0)
		case Ret | K:
			return i.K, executed, nil
		case Ret | A:
			return acc, executed, nil
		default:
			return 0, executed, Error{InvalidOpcode, pc}
		}
	}
	return 0, executed, Error{InvalidEndOfProgram, len(p.instructions)}
}
