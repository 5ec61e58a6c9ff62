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
	"io"
	"strings"

	"github.com/chzyer/readline"
)

type consoleAction int

const (
	consoleDispatch consoleAction = iota
	consoleSkip
	consoleExit
)

// classifyConsoleInput maps one Readline result onto a loop action.
// Ctrl-C drops the current line, Ctrl-D on an empty line leaves the
// console, and blank lines are skipped so the dispatcher always sees
// at least one field.
func classifyConsoleInput(line string, err error) consoleAction {
	switch {
	case err == readline.ErrInterrupt:
		return consoleSkip
	case err == io.EOF:
		return consoleExit
	case err != nil:
		return consoleExit
	case strings.TrimSpace(line) == "":
		return consoleSkip
	default:
		return consoleDispatch
	}
}
