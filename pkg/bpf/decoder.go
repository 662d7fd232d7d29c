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
	"bytes"
	"fmt"

	"github.com/openbraille/brld/pkg/abi/linux"
)

// DecodeProgram translates an array of BPF instructions into text format,
// one instruction per line with jump targets resolved to absolute lines.
func DecodeProgram(program []linux.BPFInstruction) (string, error) {
	var ret bytes.Buffer
	for line, s := range program {
		ret.WriteString(fmt.Sprintf("%3d: ", line))
		if err := decode(s, line, &ret); err != nil {
			return "", err
		}
		ret.WriteString("\n")
	}
	return ret.String(), nil
}

// Decode translates a single BPF instruction into text format.
func Decode(inst linux.BPFInstruction) (string, error) {
	var ret bytes.Buffer
	err := decode(inst, -1, &ret)
	return ret.String(), err
}

func decode(inst linux.BPFInstruction, line int, w *bytes.Buffer) error {
	switch inst.OpCode & instructionClassMask {
	case Ld:
		return decodeLd(inst, w)
	case Alu:
		if inst.OpCode != Alu|And|K {
			return fmt.Errorf("invalid BPF ALU instruction: %v", inst)
		}
		w.WriteString(fmt.Sprintf("A <- A & %#x", inst.K))
		return nil
	case Jmp:
		return decodeJmp(inst, line, w)
	case Ret:
		switch inst.OpCode & srcRetMask {
		case K:
			w.WriteString(fmt.Sprintf("ret %#x", inst.K))
		case A:
			w.WriteString("ret A")
		default:
			return fmt.Errorf("invalid BPF RET instruction: %v", inst)
		}
		return nil
	}
	return fmt.Errorf("invalid BPF instruction: %v", inst)
}

// A <- P[k:4]
func decodeLd(inst linux.BPFInstruction, w *bytes.Buffer) error {
	w.WriteString("A <- ")
	switch inst.OpCode & loadModeMask {
	case Imm:
		w.WriteString(fmt.Sprintf("%v", inst.K))
	case Abs:
		w.WriteString(fmt.Sprintf("P[%v:", inst.K))
		if err := decodeLdSize(inst, w); err != nil {
			return err
		}
		w.WriteString("]")
	default:
		return fmt.Errorf("invalid BPF LD instruction: %v", inst)
	}
	return nil
}

func decodeLdSize(inst linux.BPFInstruction, w *bytes.Buffer) error {
	switch inst.OpCode & loadSizeMask {
	case W:
		w.WriteString("4")
	case H:
		w.WriteString("2")
	case B:
		w.WriteString("1")
	default:
		return fmt.Errorf("invalid BPF LD size: %v", inst)
	}
	return nil
}

// pc += (A > k) ? jt : jf
func decodeJmp(inst linux.BPFInstruction, line int, w *bytes.Buffer) error {
	if inst.OpCode&srcAluJmpMask != K {
		return fmt.Errorf("only constant jump comparisons are generated: %v", inst)
	}
	switch inst.OpCode & jmpMask {
	case Ja:
		w.WriteString(fmt.Sprintf("jmp %v", printJmpTarget(inst.K, line)))
	case Jeq:
		w.WriteString(fmt.Sprintf("if (A == %#x) goto %v else goto %v", inst.K, printJmpTarget(uint32(inst.JumpIfTrue), line), printJmpTarget(uint32(inst.JumpIfFalse), line)))
	case Jgt:
		w.WriteString(fmt.Sprintf("if (A > %#x) goto %v else goto %v", inst.K, printJmpTarget(uint32(inst.JumpIfTrue), line), printJmpTarget(uint32(inst.JumpIfFalse), line)))
	case Jge:
		w.WriteString(fmt.Sprintf("if (A >= %#x) goto %v else goto %v", inst.K, printJmpTarget(uint32(inst.JumpIfTrue), line), printJmpTarget(uint32(inst.JumpIfFalse), line)))
	case Jset:
		w.WriteString(fmt.Sprintf("if (A & %#x) goto %v else goto %v", inst.K, printJmpTarget(uint32(inst.JumpIfTrue), line), printJmpTarget(uint32(inst.JumpIfFalse), line)))
	default:
		return fmt.Errorf("invalid BPF JMP instruction: %v", inst)
	}
	return nil
}

func printJmpTarget(target uint32, line int) string {
	if line == -1 {
		return fmt.Sprintf("[+%v]", target)
	}
	return fmt.Sprintf("%v", int(target)+line+1)
}
