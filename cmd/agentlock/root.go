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

package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"agentlock/internal/config"
	"agentlock/internal/policy"
)

// app carries the resolved global flags into the subcommands.
type app struct {
	policyPath string
	auditPath  string
	debugMode  bool
	logFile    string
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "agentlock",
		Short: "Safety-first launcher for agent CLIs",
		Long: `agentlock gates command execution behind a deny-path policy: before a
command runs, its arguments are scanned for filesystem paths and the
run is refused when any resolved path falls under a protected
directory. Every decision is appended to an audit log.

Examples:
  agentlock init
  agentlock run -- codex
  agentlock run --execute --timeout 30s -- codex
  agentlock policy add ~/.ssh
  agentlock console`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&a.policyPath, "policy", "", "policy JSON path (default ~/.config/agentlock/policy.json)")
	cmd.PersistentFlags().StringVar(&a.auditPath, "audit-log", "", "audit log path (default ~/.local/state/agentlock/audit.log)")
	cmd.PersistentFlags().BoolVarP(&a.debugMode, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "log file path (logs disabled by default)")

	cmd.AddCommand(
		newInitCmd(a),
		newShowCmd(a),
		newPolicyCmd(a),
		newRunCmd(a),
		newConsoleCmd(a),
	)
	return cmd
}

// setup fills in default locations and builds the logger.
func (a *app) setup() error {
	if a.policyPath == "" {
		path, err := config.DefaultPolicyPath()
		if err != nil {
			return err
		}
		a.policyPath = path
	}
	if a.auditPath == "" {
		path, err := config.DefaultAuditLogPath()
		if err != nil {
			return err
		}
		a.auditPath = path
	}
	a.logger = initLogger(a.debugMode, a.logFile)
	return nil
}

func (a *app) loadPolicy() (policy.Policy, error) {
	return policy.Load(a.policyPath)
}
