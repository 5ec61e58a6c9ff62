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

// Package launch builds the shell-escaped command line that re-enters
// the gate from an external terminal, so interactive surfaces can
// hand the user something safe to paste.
package launch

import (
	"os"
	"os/exec"

	"al.essio.dev/pkg/shellescape"
)

const launcherName = "agentlock"

// CommandLine returns a fully escaped launcher invocation that gates
// command through the given policy and audit log, executing in cwd.
func CommandLine(policyPath, auditLogPath, cwd string, command []string) string {
	argv := launcherPrefix()
	argv = append(argv,
		"--policy", policyPath,
		"--audit-log", auditLogPath,
		"run", "--execute", "--cwd", cwd, "--",
	)
	argv = append(argv, command...)
	return shellescape.QuoteCommand(argv)
}

// launcherPrefix prefers the installed binary on PATH and falls back
// to the currently running executable.
func launcherPrefix() []string {
	if resolved, err := exec.LookPath(launcherName); err == nil {
		return []string{resolved}
	}
	if exe, err := os.Executable(); err == nil {
		return []string{exe}
	}
	return []string{launcherName}
}
