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
	"errors"
	"io"
	"testing"

	"github.com/chzyer/readline"
)

func TestClassifyConsoleInput(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		err      error
		expected consoleAction
	}{
		{"interrupt", "run ls", readline.ErrInterrupt, consoleSkip},
		{"eof", "", io.EOF, consoleExit},
		{"eof-with-line", "status", io.EOF, consoleExit},
		{"other-error", "", errors.New("boom"), consoleExit},
		{"blank", "", nil, consoleSkip},
		{"whitespace", "   \t", nil, consoleSkip},
		{"command", "status", nil, consoleDispatch},
	}

	for _, tc := range cases {
		if got := classifyConsoleInput(tc.line, tc.err); got != tc.expected {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestParseTailCount(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		expected int
		ok       bool
	}{
		{"default", nil, 10, true},
		{"explicit", []string{"5"}, 5, true},
		{"zero", []string{"0"}, 0, false},
		{"negative", []string{"-3"}, 0, false},
		{"trailing-garbage", []string{"5x"}, 0, false},
		{"not-a-number", []string{"many"}, 0, false},
	}

	for _, tc := range cases {
		n, ok := parseTailCount(tc.args)
		if ok != tc.ok || (ok && n != tc.expected) {
			t.Fatalf("%s: expected (%d, %v), got (%d, %v)", tc.name, tc.expected, tc.ok, n, ok)
		}
	}
}
