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

// Package cmd holds the daemon's subcommand implementations.
package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/openbraille/brld/daemon/config"
	"github.com/openbraille/brld/daemon/privilege"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	keepCaps bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run the braille daemon"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return "run [flags]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.keepCaps, "keep-capabilities", false, "do not drop capabilities after initialization")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	logrus.Infof("brld starting: driver %q, device %q", conf.BrailleDriver, conf.BrailleDevice)

	// Privileged setup (device access, console binding) happens before
	// this point. From here on the daemon runs confined.
	if err := privilege.Relinquish(privilege.Params{
		FilterMode:       conf.Mode(),
		KeepCapabilities: r.keepCaps,
	}); err != nil {
		logrus.WithError(err).Error("relinquishing privileges")
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	// The device and session loop runs until a termination signal.
	<-ctx.Done()
	logrus.Info("brld shutting down")
	return subcommands.ExitSuccess
}
