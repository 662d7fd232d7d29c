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

// Package bpf provides construction, validation and interpretation of
// classic BPF programs, the instruction format consumed by seccomp filters.
package bpf

import "github.com/openbraille/brld/pkg/abi/linux"

// MaxInstructions is the maximum number of instructions in a program.
const MaxInstructions = linux.BPF_MAXINSNS

// Instruction class, stored in the lower three bits of the opcode.
const (
	Ld   = 0x00
	Ldx  = 0x01
	St   = 0x02
	Stx  = 0x03
	Alu  = 0x04
	Jmp  = 0x05
	Ret  = 0x06
	Misc = 0x07

	instructionClassMask = 0x07
)

// Size of a load operation.
const (
	W = 0x00 // 32 bits
	H = 0x08 // 16 bits
	B = 0x10 // 8 bits

	loadSizeMask = 0x18
)

// Source operand of a load operation.
const (
	Imm = 0x00 // immediate value K
	Abs = 0x20 // data in input at byte offset K
	Ind = 0x40 // data in input at byte offset X+K
	Mem = 0x60 // M[K]
	Len = 0x80 // length of the input
	Msh = 0xa0 // 4*(input[K]&0xf), used to compute header lengths

	loadModeMask = 0xe0
)

// Arithmetic instructions.
const (
	Add = 0x00
	Sub = 0x10
	Mul = 0x20
	Div = 0x30
	Or  = 0x40
	And = 0x50
	Lsh = 0x60
	Rsh = 0x70
	Neg = 0x80
	Mod = 0x90
	Xor = 0xa0

	aluMask = 0xf0
)

// Jump instructions.
const (
	Ja   = 0x00
	Jeq  = 0x10
	Jgt  = 0x20
	Jge  = 0x30
	Jset = 0x40

	jmpMask = 0xf0
)

// Source operand of an ALU or comparison instruction, or the operand of a
// return instruction.
const (
	K = 0x00
	X = 0x08
	A = 0x10

	srcAluJmpMask = 0x08
	srcRetMask    = 0x10
)

// Stmt returns an instruction with no jump fields.
func Stmt(code uint16, k uint32) linux.BPFInstruction {
	return linux.BPFInstruction{
		OpCode: code,
		K:      k,
	}
}

// Jump returns a jump instruction with the given offsets.
func Jump(code uint16, k uint32, jt, jf uint8) linux.BPFInstruction {
	return linux.BPFInstruction{
		OpCode:      code,
		JumpIfTrue:  jt,
		JumpIfFalse: jf,
		K:           k,
	}
}
