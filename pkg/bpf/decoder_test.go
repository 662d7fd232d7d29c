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
	"testing"

	"github.com/openbraille/brld/pkg/abi/linux"
)

func TestDecodeSingle(t *testing.T) {
	for _, test := range []struct {
		desc string
		inst linux.BPFInstruction
		want string
	}{
		{
			desc: "absolute word load",
			inst: Stmt(Ld|Abs|W, 16),
			want: "A <- P[16:4]",
		},
		{
			desc: "immediate load",
			inst: Stmt(Ld|Imm|W, 7),
			want: "A <- 7",
		},
		{
			desc: "mask",
			inst: Stmt(Alu|And|K, 0xff),
			want: "A <- A & 0xff",
		},
		{
			desc: "conditional jump uses relative targets without a line",
			inst: Jump(Jmp|Jeq|K, 42, 2, 0),
			want: "if (A == 0x2a) goto [+2] else goto [+0]",
		},
		{
			desc: "direct jump",
			inst: Jump(Jmp|Ja, 10, 0, 0),
			want: "jmp [+10]",
		},
		{
			desc: "return constant",
			inst: Stmt(Ret|K, 0x7fff0000),
			want: "ret 0x7fff0000",
		},
		{
			desc: "return accumulator",
			inst: Stmt(Ret|A, 0),
			want: "ret A",
		},
	} {
		got, err := Decode(test.inst)
		if err != nil {
			t.Errorf("%s: Decode() failed: %v", test.desc, err)
			continue
		}
		if got != test.want {
			t.Errorf("%s: Decode() = %q, want %q", test.desc, got, test.want)
		}
	}
}

func TestDecodeUnsupported(t *testing.T) {
	if _, err := Decode(Stmt(Ldx, 0)); err == nil {
		t.Errorf("Decode() should have failed on an LDX instruction")
	}
}
