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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openbraille/brld/pkg/abi/linux"
)

func validate(t *testing.T, p *ProgramBuilder, expected []linux.BPFInstruction) {
	t.Helper()
	instructions, err := p.Instructions()
	if err != nil {
		t.Fatalf("Instructions() failed: %v", err)
	}
	if diff := cmp.Diff(expected, instructions); diff != "" {
		t.Errorf("program mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramBuilderSimple(t *testing.T) {
	p := NewProgramBuilder()
	p.AddStmt(Ld|Abs|W, 10)
	p.AddJump(Jmp|Ja, 10, 0, 0)
	p.AddStmt(Ret|K, 0)

	validate(t, p, []linux.BPFInstruction{
		Stmt(Ld|Abs|W, 10),
		Jump(Jmp|Ja, 10, 0, 0),
		Stmt(Ret|K, 0),
	})
}

func TestProgramBuilderResolveTrue(t *testing.T) {
	p := NewProgramBuilder()
	j := p.EmitJump(Jmp|Jeq|K, 11, JumpTrue)
	p.AddStmt(Ld|Abs|W, 1)
	p.AddStmt(Ld|Abs|W, 2)
	if err := p.Resolve(j); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	p.AddStmt(Ret|K, 0)

	validate(t, p, []linux.BPFInstruction{
		Jump(Jmp|Jeq|K, 11, 2, 0),
		Stmt(Ld|Abs|W, 1),
		Stmt(Ld|Abs|W, 2),
		Stmt(Ret|K, 0),
	})
}

func TestProgramBuilderResolveFalse(t *testing.T) {
	p := NewProgramBuilder()
	j := p.EmitJump(Jmp|Jeq|K, 11, JumpFalse)
	p.AddStmt(Ld|Abs|W, 1)
	if err := p.Resolve(j); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	p.AddStmt(Ret|K, 0)

	validate(t, p, []linux.BPFInstruction{
		Jump(Jmp|Jeq|K, 11, 0, 1),
		Stmt(Ld|Abs|W, 1),
		Stmt(Ret|K, 0),
	})
}

func TestProgramBuilderResolveDirect(t *testing.T) {
	p := NewProgramBuilder()
	j := p.EmitJump(Jmp|Ja, 0, JumpDirect)
	for i := 0; i < 300; i++ {
		p.AddStmt(Ld|Abs|W, uint32(i))
	}
	if err := p.Resolve(j); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	p.AddStmt(Ret|K, 0)

	instructions, err := p.Instructions()
	if err != nil {
		t.Fatalf("Instructions() failed: %v", err)
	}
	// Direct jumps are not limited to 255 instructions.
	if got, want := instructions[0].K, uint32(300); got != want {
		t.Errorf("direct jump offset: got %d, want %d", got, want)
	}
}

func TestProgramBuilderResolveMultiple(t *testing.T) {
	// Two jumps resolved at the same target in one batch.
	p := NewProgramBuilder()
	j1 := p.EmitJump(Jmp|Jeq|K, 1, JumpTrue)
	j2 := p.EmitJump(Jmp|Jeq|K, 2, JumpTrue)
	p.AddStmt(Ld|Abs|W, 0)
	for _, j := range []JumpRef{j1, j2} {
		if err := p.Resolve(j); err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
	}
	p.AddStmt(Ret|K, 0)

	validate(t, p, []linux.BPFInstruction{
		Jump(Jmp|Jeq|K, 1, 2, 0),
		Jump(Jmp|Jeq|K, 2, 1, 0),
		Stmt(Ld|Abs|W, 0),
		Stmt(Ret|K, 0),
	})
}

func TestProgramBuilderUnresolved(t *testing.T) {
	p := NewProgramBuilder()
	p.EmitJump(Jmp|Jeq|K, 11, JumpTrue)
	p.AddStmt(Ret|K, 0)
	if _, err := p.Instructions(); err == nil {
		t.Errorf("Instructions() should have failed: unresolved jump")
	}
}

func TestProgramBuilderResolveTooFar(t *testing.T) {
	p := NewProgramBuilder()
	j := p.EmitJump(Jmp|Jeq|K, 11, JumpTrue)
	for i := 0; i < 256; i++ {
		p.AddStmt(Ld|Abs|W, 0)
	}
	if err := p.Resolve(j); err == nil {
		t.Errorf("Resolve() should have failed: conditional offset over 255")
	}
	if _, err := p.Instructions(); err == nil {
		t.Errorf("Instructions() should have failed after a failed resolution")
	}
}

func TestProgramBuilderResolveNotPlaceholder(t *testing.T) {
	p := NewProgramBuilder()
	p.AddJump(Jmp|Jeq|K, 11, 1, 0)
	if err := p.Resolve(JumpRef{index: 0, kind: JumpTrue}); err == nil {
		t.Errorf("Resolve() should have failed: instruction is not a placeholder")
	}
}

func TestProgramBuilderTooLarge(t *testing.T) {
	p := NewProgramBuilder()
	for i := 0; i < MaxInstructions+1; i++ {
		p.AddStmt(Ld|Abs|W, 0)
	}
	if _, err := p.Instructions(); err != ErrProgramTooLarge {
		t.Errorf("Instructions() = %v, want ErrProgramTooLarge", err)
	}
}

func TestProgramBuilderAtLimit(t *testing.T) {
	p := NewProgramBuilder()
	for i := 0; i < MaxInstructions-1; i++ {
		p.AddStmt(Ld|Abs|W, 0)
	}
	p.AddStmt(Ret|K, 0)
	instructions, err := p.Instructions()
	if err != nil {
		t.Fatalf("Instructions() failed at exactly MaxInstructions: %v", err)
	}
	if len(instructions) != MaxInstructions {
		t.Errorf("got %d instructions, want %d", len(instructions), MaxInstructions)
	}
}

func ExampleProgramBuilder() {
	p := NewProgramBuilder()
	p.AddStmt(Ld|Abs|W, 0)
	allow := p.EmitJump(Jmp|Jeq|K, 42, JumpTrue)
	p.AddStmt(Ret|K, 0)
	p.Resolve(allow)
	p.AddStmt(Ret|K, 1)
	instructions, _ := p.Instructions()
	out, _ := DecodeProgram(instructions)
	fmt.Print(out)
	// Output:
	//   0: A <- P[0:4]
	//   1: if (A == 0x2a) goto 3 else goto 2
	//   2: ret 0x0
	//   3: ret 0x1
}
