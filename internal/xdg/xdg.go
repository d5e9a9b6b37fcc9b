// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package xdg resolves XDG Base Directory paths for authio.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "authio"

// ConfigDir returns $XDG_CONFIG_HOME/authio, falling back to ~/.config/authio.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfigFile returns ConfigFile if it exists, or "" otherwise.
func DefaultConfigFile() string {
	path := ConfigFile()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
