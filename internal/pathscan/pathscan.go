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

// Package pathscan extracts candidate filesystem paths from a
// tokenized command line. The heuristic is deliberately over-inclusive:
// a token that merely looks like a path becomes a candidate, while a
// path smuggled through an unrecognized flag or an opaque string is
// the accepted residual risk. Input is always an argument vector,
// never a shell string.
package pathscan

import (
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"agentlock/internal/paths"
)

// pathOptionNames lists flag names whose value is expected to be a
// filesystem path, with or without the `=value` form.
var pathOptionNames = map[string]bool{
	"-C":            true,
	"-c":            true,
	"-f":            true,
	"-o":            true,
	"--cd":          true,
	"--config":      true,
	"--config-file": true,
	"--config-path": true,
	"--cwd":         true,
	"--directory":   true,
	"--file":        true,
	"--input":       true,
	"--log-file":    true,
	"--output":      true,
	"--path":        true,
	"--policy":      true,
	"--project":     true,
	"--root":        true,
	"--settings":    true,
	"--workdir":     true,
}

// pathSuffixHints lists file extensions that typically carry config,
// credential or source files.
var pathSuffixHints = []string{
	".cfg", ".conf", ".crt", ".csr", ".env", ".ini", ".json", ".key",
	".md", ".pem", ".py", ".sh", ".toml", ".txt", ".yaml", ".yml",
}

var envAssignPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// tokenKind is the discrete classification assigned to each argument
// token before any path-likeness test is applied.
type tokenKind int

const (
	kindEnvAssign tokenKind = iota
	kindExecutable
	kindOptionWithValue
	kindOptionExpectingPath
	kindOption
	kindPathValue
	kindPositional
)

// Scanner extracts candidate paths from commands. The executable
// lookup is injectable so classification stays testable without a
// real PATH.
type Scanner struct {
	lookPath func(name string) (string, error)
}

// New returns a Scanner that resolves bare executable names through
// the system PATH.
func New() *Scanner {
	return &Scanner{lookPath: exec.LookPath}
}

// Candidates returns the deduplicated, sorted set of normalized
// candidate paths referenced by the command. Tokens that fail to
// normalize are dropped individually; extraction never aborts.
func (s *Scanner) Candidates(command []string, cwd string) []string {
	set := make(map[string]struct{})

	rest := command
	for len(rest) > 0 && classifyLeading(rest[0]) == kindEnvAssign {
		addAssignmentValue(set, rest[0], cwd)
		rest = rest[1:]
	}

	if len(rest) > 0 {
		if resolved := s.resolveExecutable(rest[0]); resolved != "" {
			addCandidate(set, resolved, cwd)
		}
		s.scanArguments(set, rest[1:], cwd)
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func classifyLeading(token string) tokenKind {
	if IsEnvAssignment(token) {
		return kindEnvAssign
	}
	return kindExecutable
}

// classifyArgument assigns a kind to one token given the single piece
// of scan state: whether the previous token was an option whose path
// value is still pending.
func classifyArgument(token string, expectingPath bool) tokenKind {
	switch {
	case expectingPath:
		return kindPathValue
	case strings.HasPrefix(token, "-"):
		name, _, hasValue := strings.Cut(token, "=")
		if hasValue {
			return kindOptionWithValue
		}
		if pathOptionNames[name] {
			return kindOptionExpectingPath
		}
		return kindOption
	default:
		return kindPositional
	}
}

func (s *Scanner) scanArguments(set map[string]struct{}, args []string, cwd string) {
	expectingPath := false
	for _, arg := range args {
		if arg == "" {
			continue
		}
		switch classifyArgument(arg, expectingPath) {
		case kindPathValue:
			expectingPath = false
			addCandidate(set, arg, cwd)
		case kindOptionWithValue:
			name, value, _ := strings.Cut(arg, "=")
			if pathOptionNames[name] || LooksLikePath(value) {
				addCandidate(set, value, cwd)
			}
		case kindOptionExpectingPath:
			expectingPath = true
		case kindOption:
			// Unknown flag without a value: nothing to extract.
		case kindPositional:
			if LooksLikePath(arg) {
				addCandidate(set, arg, cwd)
			}
		}
	}
}

// addAssignmentValue scans the value half of a NAME=value token.
func addAssignmentValue(set map[string]struct{}, token, cwd string) {
	_, value, _ := strings.Cut(token, "=")
	if LooksLikePath(value) {
		addCandidate(set, value, cwd)
	}
}

func addCandidate(set map[string]struct{}, raw, cwd string) {
	normalized, err := paths.Normalize(raw, cwd)
	if err != nil {
		return
	}
	set[normalized] = struct{}{}
}

// resolveExecutable turns the executable token into a resolvable path:
// tokens containing a separator are taken as-is, bare names go through
// PATH lookup. A bare name that cannot be resolved yields no
// candidate and is not an error.
func (s *Scanner) resolveExecutable(token string) string {
	if strings.ContainsRune(token, '/') {
		return token
	}
	resolved, err := s.lookPath(token)
	if err != nil {
		return ""
	}
	return resolved
}

// IsEnvAssignment reports whether the token has the IDENTIFIER=value
// shape of an environment assignment.
func IsEnvAssignment(token string) bool {
	return envAssignPattern.MatchString(token)
}

// LooksLikePath reports whether a token plausibly references a
// filesystem location. False positives are acceptable here; false
// negatives are the documented residual risk of the heuristic.
func LooksLikePath(value string) bool {
	if value == "" {
		return false
	}
	if strings.HasPrefix(value, "~") || strings.HasPrefix(value, "/") ||
		strings.HasPrefix(value, "./") || strings.HasPrefix(value, "../") {
		return true
	}
	if strings.HasSuffix(value, "/") || strings.HasSuffix(value, "\\") {
		return true
	}
	for _, suffix := range pathSuffixHints {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	// Drive-style paths such as C:\path\to\file.
	if len(value) >= 3 && (value[1:3] == `:\` || value[1:3] == ":/") {
		return true
	}
	return strings.ContainsAny(value, `/\`)
}
