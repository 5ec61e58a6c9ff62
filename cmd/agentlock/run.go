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
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/cobra"

	"agentlock/internal/audit"
	"agentlock/internal/gate"
	"agentlock/internal/paths"
	"agentlock/internal/policy"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		execute bool
		cwdFlag string
		timeout time.Duration
		noSpawn bool
	)
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command through the deny-path gate",
		Long: `run evaluates the command against the deny-path policy, records the
decision in the audit log and, with --execute, runs the command. The
process exit code mirrors the gate decision: 0 executed or dry run,
2 invalid request, 25 blocked by policy, 26 no-spawn block, 124
timeout, 127 command not found.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGated(args, execute, cwdFlag, timeout, noSpawn)
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "actually execute the command")
	cmd.Flags().StringVar(&cwdFlag, "cwd", ".", "working directory for the command")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "kill the command after this duration")
	cmd.Flags().BoolVar(&noSpawn, "no-spawn", false, "evaluate and audit but never spawn a process")
	return cmd
}

func (a *app) runGated(command []string, execute bool, cwdFlag string, timeout time.Duration, noSpawn bool) error {
	if len(command) > 0 && command[0] == "--" {
		command = command[1:]
	}
	if len(command) == 0 {
		fmt.Fprintln(os.Stderr, "Command is required. Example: agentlock run -- codex")
		os.Exit(2)
	}

	cwd, err := paths.Normalize(cwdFlag, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid working directory: %v\n", err)
		os.Exit(2)
	}
	info, err := os.Stat(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Working directory was not found: %s\n", cwd)
		os.Exit(2)
	}
	if !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Working directory is not a directory: %s\n", cwd)
		os.Exit(2)
	}

	pol, err := a.loadPolicy()
	if err != nil {
		return err
	}

	result, err := a.gatedRun(pol, gate.Request{
		Command: command,
		Cwd:     cwd,
		Execute: execute,
		Timeout: timeout,
	}, noSpawn)
	if err != nil {
		return err
	}

	printResult(os.Stdout, os.Stderr, result)
	os.Exit(result.ExitCode)
	return nil
}

// gatedRun performs one gate decision and appends the audit entry.
// Both the CLI and the console go through here so every surface
// produces identical decisions and identical records.
func (a *app) gatedRun(pol policy.Policy, req gate.Request, noSpawn bool) (gate.Result, error) {
	mode := gate.ModeEnforce
	if noSpawn {
		mode = gate.ModeNoSpawn
	}
	g := gate.New(pol, gate.Options{Mode: mode, Logger: &a.logger})
	result, err := g.Run(context.Background(), req)
	if err != nil {
		return gate.Result{}, err
	}

	entry := audit.Entry{
		Timestamp:    audit.Timestamp(),
		Command:      req.Command,
		CommandText:  shellescape.QuoteCommand(req.Command),
		Cwd:          req.Cwd,
		Executed:     result.Executed,
		Reason:       string(result.Reason),
		ExitCode:     result.ExitCode,
		BlockedPaths: result.BlockedPaths,
	}
	// A decision that cannot be recorded is a failure, not a warning.
	if err := audit.New(a.auditPath).Append(entry); err != nil {
		return gate.Result{}, err
	}
	a.logger.Info().Str("reason", string(result.Reason)).Int("exit_code", result.ExitCode).Msg("gate decision recorded")
	return result, nil
}

func printResult(stdout, stderr io.Writer, result gate.Result) {
	fmt.Fprintln(stdout, result.Message)
	for _, blocked := range result.BlockedPaths {
		fmt.Fprintf(stdout, "blocked_path: %s\n", blocked)
	}
	printBlock(stdout, result.Stdout)
	printBlock(stderr, result.Stderr)
}

// printBlock writes captured output, ensuring exactly one trailing
// newline.
func printBlock(w io.Writer, s string) {
	if s == "" {
		return
	}
	if strings.HasSuffix(s, "\n") {
		fmt.Fprint(w, s)
		return
	}
	fmt.Fprintln(w, s)
}
