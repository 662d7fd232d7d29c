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

// Package cli is the command-line front end of the daemon.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/openbraille/brld/daemon/cmd"
	"github.com/openbraille/brld/daemon/config"
)

var (
	configPath = flag.String("config", "", "path to the daemon configuration file")
	logLevel   = flag.String("log-level", "", "override the configured log level")
	filterMode = flag.String("filter-mode", "", "override the configured syscall filter mode")
)

// Main is the entry point for the brld binary. It returns the process exit
// code.
func Main() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.DumpFilter), "debug")
	subcommands.Register(new(cmd.Version), "")

	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "brld: %v\n", err)
			return 1
		}
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	if *filterMode != "" {
		conf.FilterMode = *filterMode
	}

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brld: invalid log level %q\n", conf.LogLevel)
		return 1
	}
	logrus.SetLevel(level)

	return int(subcommands.Execute(context.Background(), conf))
}
