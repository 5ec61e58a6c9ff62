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

// Package gate decides whether a command may run and optionally runs
// it. The decision sequence is strictly ordered and short-circuiting:
// request validation, deny-path check, dry-run, spawn-mode check,
// execution. The deny-path check always comes first among outcomes so
// a blocked command is reported as blocked even on a dry run.
package gate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"agentlock/internal/pathscan"
	"agentlock/internal/policy"
)

// Reason is the closed taxonomy of gate outcomes. Callers switch on
// it exhaustively; it is not an error type.
type Reason string

const (
	ReasonInvalidRequest  Reason = "invalid_request"
	ReasonBlockedByPolicy Reason = "blocked_by_policy"
	ReasonDryRun          Reason = "dry_run"
	ReasonTestModeBlock   Reason = "test_mode_block"
	ReasonCommandNotFound Reason = "command_not_found"
	ReasonTimeout         Reason = "timeout"
	ReasonExecuted        Reason = "executed"
)

// Exit codes reported in Result.ExitCode for non-executed outcomes.
const (
	ExitInvalidRequest  = 2
	ExitBlockedByPolicy = 25
	ExitTestModeBlock   = 26
	ExitTimeout         = 124
	ExitCommandNotFound = 127
)

// Request describes one command invocation. It is constructed once,
// consumed once, and never mutated.
type Request struct {
	Command []string
	Cwd     string
	Execute bool
	Timeout time.Duration // zero means no timeout
}

// Result is the single outcome produced for a Request.
type Result struct {
	Executed     bool
	ExitCode     int
	Reason       Reason
	Message      string
	Stdout       string
	Stderr       string
	BlockedPaths []string
}

// Outcome is what an Executor reports for a spawned process.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Executor spawns a process and captures its output. ErrNotFound from
// the exec package must surface through the returned error so the
// gate can classify missing executables.
type Executor interface {
	Run(ctx context.Context, command []string, cwd string, timeout time.Duration) (Outcome, error)
}

// Mode selects whether the gate is allowed to spawn processes at all.
type Mode int

const (
	// ModeEnforce runs commands that pass the policy check.
	ModeEnforce Mode = iota
	// ModeNoSpawn evaluates and reports but never spawns a process,
	// even for a request with Execute set. Test suites run the gate in
	// this mode so a misconfigured request cannot start anything real.
	ModeNoSpawn
)

// Options configures a Gate.
type Options struct {
	Executor Executor        // nil selects the OS executor
	Mode     Mode            // defaults to ModeEnforce
	Logger   *zerolog.Logger // nil disables gate logging
}

// Gate evaluates run requests against a deny-path policy.
type Gate struct {
	policy  policy.Policy
	scanner *pathscan.Scanner
	exec    Executor
	mode    Mode
	log     zerolog.Logger
}

// New builds a Gate for the given policy.
func New(pol policy.Policy, opts Options) *Gate {
	executor := opts.Executor
	if executor == nil {
		executor = OSExecutor{}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Gate{
		policy:  pol,
		scanner: pathscan.New(),
		exec:    executor,
		mode:    opts.Mode,
		log:     logger,
	}
}

// Run evaluates one request and produces its Result. The returned
// error is reserved for executor infrastructure failures (not for any
// of the Reason outcomes). When the request times out, the child has
// already been killed and reaped before Run returns.
func (g *Gate) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Command) == 0 {
		return Result{
			Reason:   ReasonInvalidRequest,
			Message:  "Command is required.",
			ExitCode: ExitInvalidRequest,
		}, nil
	}

	blocked := g.blockedPaths(req.Command, req.Cwd)
	if len(blocked) > 0 {
		g.log.Debug().Strs("blocked_paths", blocked).Msg("command blocked by deny policy")
		return Result{
			Reason:       ReasonBlockedByPolicy,
			Message:      "Command blocked by deny policy.",
			ExitCode:     ExitBlockedByPolicy,
			BlockedPaths: blocked,
		}, nil
	}

	if !req.Execute {
		return Result{
			Reason:  ReasonDryRun,
			Message: "Dry run only. Use --execute to allow execution.",
		}, nil
	}

	if g.mode == ModeNoSpawn {
		return Result{
			Reason:   ReasonTestModeBlock,
			Message:  "Execution blocked: gate is in no-spawn mode.",
			ExitCode: ExitTestModeBlock,
		}, nil
	}

	g.log.Debug().Strs("command", req.Command).Str("cwd", req.Cwd).Msg("executing command")
	outcome, err := g.exec.Run(ctx, req.Command, req.Cwd, req.Timeout)
	if err != nil {
		if isNotFound(err) {
			return Result{
				Reason:   ReasonCommandNotFound,
				Message:  err.Error(),
				ExitCode: ExitCommandNotFound,
			}, nil
		}
		return Result{}, err
	}

	if outcome.TimedOut {
		return Result{
			Executed: true,
			Reason:   ReasonTimeout,
			Message:  fmt.Sprintf("Command timed out after %s.", req.Timeout),
			ExitCode: ExitTimeout,
			Stdout:   outcome.Stdout,
			Stderr:   outcome.Stderr,
		}, nil
	}

	return Result{
		Executed: true,
		Reason:   ReasonExecuted,
		Message:  "Command executed.",
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
	}, nil
}

// blockedPaths runs the extractor over the full argument list and
// keeps the candidates the policy denies, sorted and deduplicated.
func (g *Gate) blockedPaths(command []string, cwd string) []string {
	var blocked []string
	for _, candidate := range g.scanner.Candidates(command, cwd) {
		if g.policy.IsDenied(candidate, cwd) {
			blocked = append(blocked, candidate)
		}
	}
	sort.Strings(blocked)
	return blocked
}
