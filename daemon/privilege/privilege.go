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

// Package privilege relinquishes the privileges the daemon needed only for
// initialization. The sequence is: install the syscall filter, then clear
// capabilities. The capability drop runs under the freshly installed filter,
// so the policy in daemon/filter permits the capget, capset and prctl calls
// it performs.
package privilege

import (
	"fmt"

	"github.com/moby/sys/capability"
	"github.com/sirupsen/logrus"

	"github.com/openbraille/brld/daemon/filter"
	"github.com/openbraille/brld/pkg/seccomp"
)

// Params configures the relinquishing sequence.
type Params struct {
	// FilterMode selects the syscall filter behavior.
	FilterMode seccomp.Mode

	// KeepCapabilities skips the capability drop. Used when the daemon
	// runs under an init system that manages capabilities itself.
	KeepCapabilities bool
}

// Relinquish installs the syscall filter and drops all capabilities.
//
// A filter that fails to compile or install is logged and skipped: it is
// defense in depth, and a daemon without it is still a working screen
// reader. A failed capability drop is an error.
func Relinquish(p Params) error {
	if err := filter.Install(p.FilterMode); err != nil {
		logrus.WithError(err).Warn("privilege: continuing without syscall filter")
	}

	if p.KeepCapabilities {
		logrus.Debug("privilege: keeping capabilities")
		return nil
	}
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("reading capabilities: %w", err)
	}
	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS); err != nil {
		return fmt.Errorf("dropping capabilities: %w", err)
	}
	logrus.Info("privilege: capabilities dropped")
	return nil
}
