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

// Package paths normalizes filesystem paths into the canonical absolute
// form used for deny-path containment checks. Normalization never
// requires the path to exist: symlinks are resolved for the longest
// existing ancestor and the remaining components are appended lexically.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize expands a home-directory prefix, resolves the path against
// baseDir when relative (against the process working directory when
// baseDir is empty), and resolves `.`, `..` and symlinks without
// requiring the path to exist. The result is absolute and clean, and
// Normalize is idempotent on its own output.
func Normalize(path, baseDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.IndexByte(path, 0) != -1 {
		return "", fmt.Errorf("path contains null byte")
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		root := baseDir
		if root == "" {
			root, err = os.Getwd()
			if err != nil {
				return "", fmt.Errorf("failed to determine working directory: %v", err)
			}
		}
		expanded = filepath.Join(root, expanded)
	}
	abs, err := filepath.Abs(filepath.Clean(expanded))
	if err != nil {
		return "", err
	}
	return resolveLenient(abs)
}

// ExpandHome replaces a leading "~" or "~/" with the current user's
// home directory. Other users' homes ("~name") are left untouched.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %v", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// resolveLenient resolves symlinks like filepath.EvalSymlinks but
// tolerates missing files: the longest existing ancestor is resolved
// and the non-existing tail is joined back on unchanged.
func resolveLenient(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	parentResolved, err := resolveLenient(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(parentResolved, filepath.Base(path)), nil
}

// IsSubpath reports whether path equals root or sits below it. Both
// arguments must already be normalized; the comparison is exact on
// path components, never a naive string prefix.
func IsSubpath(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
