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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentlock/internal/audit"
	"agentlock/internal/gate"
	"agentlock/internal/launch"
	"agentlock/internal/policy"
)

const consoleHelp = `Commands:
  status              show policy status
  list                show deny paths
  on | off            enable / disable protection
  add <path>...       add deny paths
  remove <path>...    remove deny paths
  dry <command...>    evaluate a command without executing it
  run <command...>    evaluate and execute a command
  log [n]             show the last n audit entries (default 10)
  launch <command...> print a gated launcher command line
  help                show this help
  exit                leave the console

Command arguments are split on whitespace; there is no shell quoting.`

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive policy editor and gated runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConsole()
		},
	}
}

func (a *app) runConsole() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("the console requires an interactive terminal")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agentlock> ",
		HistoryFile:     consoleHistoryFile(),
		AutoComplete:    consoleCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %v", err)
	}
	defer rl.Close()

	fmt.Printf("agentlock console — policy: %s\n", a.policyPath)
	fmt.Println(`Type "help" for commands.`)

	for {
		line, err := rl.Readline()
		switch classifyConsoleInput(line, err) {
		case consoleExit:
			return nil
		case consoleSkip:
			continue
		}
		if done := a.dispatchConsole(strings.Fields(line)); done {
			return nil
		}
	}
}

// dispatchConsole handles one console command; it reports true when
// the console should exit.
func (a *app) dispatchConsole(fields []string) bool {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "exit", "quit":
		return true
	case "help":
		fmt.Println(consoleHelp)
	case "status":
		a.withPolicy(func(pol policy.Policy) {
			fmt.Printf("enabled: %s\n", onOff(pol.Enabled))
			fmt.Printf("deny_paths: %d\n", len(pol.DenyPaths))
		})
	case "list":
		a.withPolicy(func(pol policy.Policy) {
			fmt.Printf("enabled: %s\n", onOff(pol.Enabled))
			for _, path := range pol.DenyPaths {
				fmt.Println(path)
			}
		})
	case "on", "off":
		a.consoleToggle(cmd == "on")
	case "add", "remove":
		if len(args) == 0 {
			fmt.Printf("usage: %s <path>...\n", cmd)
			break
		}
		a.consoleEdit(cmd, args)
	case "dry":
		a.consoleRun(args, false)
	case "run":
		a.consoleRun(args, true)
	case "log":
		a.consoleLog(args)
	case "launch":
		if len(args) == 0 {
			fmt.Println("usage: launch <command...>")
			break
		}
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Println(launch.CommandLine(a.policyPath, a.auditPath, cwd, args))
	default:
		fmt.Printf("unknown command %q; type \"help\"\n", cmd)
	}
	return false
}

// withPolicy loads the policy and runs fn on it, reporting load
// errors inline instead of leaving the console.
func (a *app) withPolicy(fn func(policy.Policy)) {
	pol, err := a.loadPolicy()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fn(pol)
}

func (a *app) consoleToggle(enabled bool) {
	a.withPolicy(func(pol policy.Policy) {
		pol.Enabled = enabled
		if err := policy.Save(a.policyPath, pol); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("enabled: %s\n", onOff(enabled))
	})
}

func (a *app) consoleEdit(op string, rawPaths []string) {
	a.withPolicy(func(pol policy.Policy) {
		updated, err := editDenyPaths(pol, op, rawPaths, filepath.Dir(a.policyPath))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if err := policy.Save(a.policyPath, updated); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for _, path := range updated.DenyPaths {
			fmt.Println(path)
		}
	})
}

func (a *app) consoleRun(command []string, execute bool) {
	if len(command) == 0 {
		fmt.Println("usage: run <command...>")
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	a.withPolicy(func(pol policy.Policy) {
		result, err := a.gatedRun(pol, gate.Request{
			Command: command,
			Cwd:     cwd,
			Execute: execute,
		}, false)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		printResult(os.Stdout, os.Stderr, result)
		fmt.Printf("exit_code: %d\n", result.ExitCode)
	})
}

func (a *app) consoleLog(args []string) {
	n, ok := parseTailCount(args)
	if !ok {
		fmt.Println("usage: log [n]")
		return
	}
	entries, err := audit.New(a.auditPath).Tail(n)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("audit log is empty")
		return
	}
	for _, entry := range entries {
		fmt.Printf("%s  %-18s exit=%-3d %s\n", entry.Timestamp, entry.Reason, entry.ExitCode, entry.CommandText)
		for _, blocked := range entry.BlockedPaths {
			fmt.Printf("    blocked_path: %s\n", blocked)
		}
	}
}

// parseTailCount parses the optional entry count of the log command,
// defaulting to 10. Anything but a positive decimal integer is
// rejected.
func parseTailCount(args []string) (int, bool) {
	if len(args) == 0 {
		return 10, true
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func consoleCompleter() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("status"),
		readline.PcItem("list"),
		readline.PcItem("on"),
		readline.PcItem("off"),
		readline.PcItem("add"),
		readline.PcItem("remove"),
		readline.PcItem("dry"),
		readline.PcItem("run"),
		readline.PcItem("log"),
		readline.PcItem("launch"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func consoleHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentlock_history")
}
