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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/openbraille/brld/daemon/filter"
	"github.com/openbraille/brld/pkg/bpf"
	"github.com/openbraille/brld/pkg/seccomp"
)

// DumpFilter implements subcommands.Command for the "dump-filter" command.
// It prints the program the daemon would install, without installing it.
type DumpFilter struct {
	mode   string
	format string
}

// Name implements subcommands.Command.Name.
func (*DumpFilter) Name() string {
	return "dump-filter"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*DumpFilter) Synopsis() string {
	return "dump the daemon's seccomp program"
}

// Usage implements subcommands.Command.Usage.
func (*DumpFilter) Usage() string {
	return "dump-filter [flags]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *DumpFilter) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.mode, "mode", seccomp.DefaultMode.String(), "filter mode to compile for: log, fail or kill")
	f.StringVar(&d.format, "format", "fancy", "output format: fancy (decoded) or raw (one instruction per line)")
}

// Execute implements subcommands.Command.Execute.
func (d *DumpFilter) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	mode := seccomp.ParseMode(d.mode)
	if mode == seccomp.ModeNo {
		fmt.Println("filtering disabled, no program")
		return subcommands.ExitSuccess
	}
	instrs, err := seccomp.BuildProgram(filter.Rules(), mode.ProgramOptions())
	if err != nil {
		logrus.WithError(err).Error("building program")
		return subcommands.ExitFailure
	}

	switch d.format {
	case "fancy":
		out, err := bpf.DecodeProgram(instrs)
		if err != nil {
			logrus.WithError(err).Error("decoding program")
			return subcommands.ExitFailure
		}
		fmt.Printf("%d instructions\n%s", len(instrs), out)
	case "raw":
		for _, inst := range instrs {
			fmt.Printf("{%#04x %d %d %#x}\n", inst.OpCode, inst.JumpIfTrue, inst.JumpIfFalse, inst.K)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown format %q\n", d.format)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}
