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

// Package policy implements the deny-path policy: a flat set of
// normalized absolute paths under which any access is refused while
// the policy is enabled. The policy document is a JSON object
// {"enabled": bool, "deny_paths": [string, ...]} persisted as a whole;
// it is never partially rewritten.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"agentlock/internal/errors"
	"agentlock/internal/paths"
)

// Policy holds the enabled flag and the deny-path set. DenyPaths are
// always absolute and normalized, so containment checks reduce to
// component-wise prefix comparison.
type Policy struct {
	Enabled   bool
	DenyPaths []string
}

// FromDocument validates a decoded policy document and normalizes its
// deny paths against baseDir. Malformed fields yield a CodePolicy
// error; invalid entries are never silently coerced or dropped.
func FromDocument(doc map[string]json.RawMessage, baseDir string) (Policy, error) {
	enabled := true
	if raw, ok := doc["enabled"]; ok {
		if err := json.Unmarshal(raw, &enabled); err != nil {
			return Policy{}, errors.New(errors.CodePolicy, "'enabled' must be a boolean")
		}
	}

	rawDeny, ok := doc["deny_paths"]
	if !ok {
		return Policy{}, errors.New(errors.CodePolicy, "'deny_paths' must be a list")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawDeny, &entries); err != nil {
		return Policy{}, errors.New(errors.CodePolicy, "'deny_paths' must be a list")
	}

	denyPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		var value string
		if err := json.Unmarshal(entry, &value); err != nil {
			return Policy{}, errors.New(errors.CodePolicy, "'deny_paths' entries must be strings")
		}
		normalized, err := paths.Normalize(value, baseDir)
		if err != nil {
			return Policy{}, errors.Wrap(errors.CodePolicy, fmt.Sprintf("invalid deny path %q", value), err)
		}
		denyPaths = append(denyPaths, normalized)
	}
	sort.Strings(denyPaths)
	return Policy{Enabled: enabled, DenyPaths: denyPaths}, nil
}

// IsDenied reports whether target falls under any deny path. A
// disabled policy grants full access regardless of the deny list.
// The target is normalized against baseDir first; a target that
// cannot be normalized is reported as not denied.
func (p Policy) IsDenied(target, baseDir string) bool {
	if !p.Enabled {
		return false
	}
	normalized, err := paths.Normalize(target, baseDir)
	if err != nil {
		return false
	}
	for _, deny := range p.DenyPaths {
		if paths.IsSubpath(normalized, deny) {
			return true
		}
	}
	return false
}

type document struct {
	Enabled   bool     `json:"enabled"`
	DenyPaths []string `json:"deny_paths"`
}

// MarshalDocument returns the persisted form of the policy: indented
// JSON with deny paths sorted and a trailing newline.
func (p Policy) MarshalDocument() ([]byte, error) {
	deny := append([]string{}, p.DenyPaths...)
	sort.Strings(deny)
	data, err := json.MarshalIndent(document{Enabled: p.Enabled, DenyPaths: deny}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.CodePolicy, "failed to encode policy", err)
	}
	return append(data, '\n'), nil
}

// Load reads and validates a policy document. Missing files, invalid
// JSON and malformed fields all surface as CodePolicy errors.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Policy{}, errors.Newf(errors.CodePolicy, "policy file was not found: %s", path)
		}
		return Policy{}, errors.Wrap(errors.CodePolicy, "failed to read policy file", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Policy{}, errors.New(errors.CodePolicy, "policy file must contain a JSON object")
	}
	return FromDocument(doc, "")
}

// Save writes the whole policy document atomically: marshal, write to
// a temp file in the same directory, then rename over the target.
func Save(path string, p Policy) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.CodePolicy, "failed to create policy directory", err)
	}
	data, err := p.MarshalDocument()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(errors.CodePolicy, "failed to create temp policy file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.CodePolicy, "failed to write policy", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.CodePolicy, "failed to write policy", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.CodePolicy, "failed to replace policy file", err)
	}
	return nil
}
