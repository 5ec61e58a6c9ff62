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
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"syscall"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the
// child is killed, so a grandchild holding stdout open cannot stall
// the timeout path.
const waitDelay = 5 * time.Second

// OSExecutor runs commands as real processes. On timeout the child is
// killed and reaped before Run returns; the Outcome carries whatever
// output was captured up to that point.
type OSExecutor struct{}

// Run executes the command in cwd under an optional timeout.
func (OSExecutor) Run(ctx context.Context, command []string, cwd string, timeout time.Duration) (Outcome, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	outcome := Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return outcome, nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		outcome.TimedOut = true
		return outcome, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
		return outcome, nil
	}
	return Outcome{}, err
}

// isNotFound reports whether the executor failed because the
// executable does not exist: a bare name missing from PATH, a
// path-form executable that does not exist, or a path routed through
// a non-directory component.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR)
}
