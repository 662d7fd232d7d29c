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

// Package config holds the daemon configuration, loaded from an optional
// YAML file over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openbraille/brld/pkg/seccomp"
)

// Config is the daemon configuration.
type Config struct {
	// BrailleDriver names the display driver to load.
	BrailleDriver string `yaml:"braille-driver"`

	// BrailleDevice is the device path or address the driver binds to.
	BrailleDevice string `yaml:"braille-device"`

	// APISocket is the local socket path the client API listens on.
	APISocket string `yaml:"api-socket"`

	// FilterMode selects the syscall filter behavior: no, log, fail, or
	// kill.
	FilterMode string `yaml:"filter-mode"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log-level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BrailleDriver: "auto",
		BrailleDevice: "usb:",
		APISocket:     "/run/brld/api.sock",
		FilterMode:    seccomp.DefaultMode.String(),
		LogLevel:      "info",
	}
}

// Load reads the YAML file at path over the defaults. Unknown keys are an
// error so that a misspelled option is noticed rather than ignored.
func Load(path string) (*Config, error) {
	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return conf, nil
}

// Mode parses the configured filter mode string.
func (c *Config) Mode() seccomp.Mode {
	return seccomp.ParseMode(c.FilterMode)
}
