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

package gate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	return sh
}

func TestOSExecutorCapturesOutput(t *testing.T) {
	sh := requireShell(t)
	outcome, err := OSExecutor{}.Run(context.Background(),
		[]string{sh, "-c", "echo out; echo err >&2"}, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.ExitCode != 0 || outcome.TimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if strings.TrimSpace(outcome.Stdout) != "out" {
		t.Fatalf("expected stdout 'out', got %q", outcome.Stdout)
	}
	if strings.TrimSpace(outcome.Stderr) != "err" {
		t.Fatalf("expected stderr 'err', got %q", outcome.Stderr)
	}
}

func TestOSExecutorExitCode(t *testing.T) {
	sh := requireShell(t)
	outcome, err := OSExecutor{}.Run(context.Background(),
		[]string{sh, "-c", "exit 7"}, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", outcome.ExitCode)
	}
}

func TestOSExecutorNotFound(t *testing.T) {
	_, err := OSExecutor{}.Run(context.Background(),
		[]string{"agentlock-no-such-binary"}, t.TempDir(), 0)
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !isNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestOSExecutorPathFormNotFound(t *testing.T) {
	cases := []struct {
		name    string
		command []string
	}{
		{"absolute", []string{"/nonexistent/agentlock-tool"}},
		{"relative", []string{"./no-such-tool"}},
	}

	for _, tc := range cases {
		_, err := OSExecutor{}.Run(context.Background(), tc.command, t.TempDir(), 0)
		if err == nil {
			t.Fatalf("%s: expected error for missing executable", tc.name)
		}
		if !isNotFound(err) {
			t.Fatalf("%s: expected not-found classification, got %v", tc.name, err)
		}
	}
}

func TestOSExecutorPathThroughNonDirectoryNotFound(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	_, err := OSExecutor{}.Run(context.Background(),
		[]string{filepath.Join(file, "tool")}, dir, 0)
	if err == nil {
		t.Fatal("expected error for path through a non-directory")
	}
	if !isNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestOSExecutorTimeoutKillsChild(t *testing.T) {
	sh := requireShell(t)
	start := time.Now()
	outcome, err := OSExecutor{}.Run(context.Background(),
		[]string{sh, "-c", "echo before; sleep 10; echo after"}, t.TempDir(), 200*time.Millisecond)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.TimedOut {
		t.Fatalf("expected timeout, got %+v", outcome)
	}
	if !strings.Contains(outcome.Stdout, "before") {
		t.Fatalf("expected partial output captured before the kill, got %q", outcome.Stdout)
	}
	if strings.Contains(outcome.Stdout, "after") {
		t.Fatal("child kept running past the timeout")
	}
	// Run must only return once the child is reaped; that has to be
	// well before the sleep would have finished.
	if elapsed > 5*time.Second {
		t.Fatalf("executor took %s to return after timeout", elapsed)
	}
}

func TestOSExecutorRespectsCwd(t *testing.T) {
	sh := requireShell(t)
	dir := t.TempDir()
	outcome, err := OSExecutor{}.Run(context.Background(),
		[]string{sh, "-c", "pwd"}, dir, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("failed to resolve dir: %v", err)
	}
	if got := strings.TrimSpace(outcome.Stdout); got != want {
		t.Fatalf("expected pwd %s, got %s", want, got)
	}
}
