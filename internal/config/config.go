// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config provides the default locations and contents of the
// policy document and audit log.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const appName = "agentlock"

// DefaultDenyPaths are the credential directories protected out of
// the box. They are persisted unexpanded; the policy loader expands
// the home prefix at load time.
func DefaultDenyPaths() []string {
	return []string{
		"~/.ssh",
		"~/.aws",
		"~/.gnupg",
		"~/Library/Keychains",
	}
}

// DefaultPolicyPath returns ~/.config/agentlock/policy.json.
func DefaultPolicyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %v", err)
	}
	return filepath.Join(home, ".config", appName, "policy.json"), nil
}

// DefaultAuditLogPath returns ~/.local/state/agentlock/audit.log.
func DefaultAuditLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %v", err)
	}
	return filepath.Join(home, ".local", "state", appName, "audit.log"), nil
}

type policyDocument struct {
	Enabled   bool     `json:"enabled"`
	DenyPaths []string `json:"deny_paths"`
}

// WriteDefaultPolicy creates the default policy document at path. An
// existing non-empty file is left alone unless overwrite is set.
func WriteDefaultPolicy(path string, overwrite bool) error {
	if !overwrite {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create policy directory: %v", err)
	}
	data, err := json.MarshalIndent(policyDocument{
		Enabled:   true,
		DenyPaths: DefaultDenyPaths(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode default policy: %v", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
