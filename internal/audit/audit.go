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

// Package audit appends one JSON record per gate decision to a
// rotating JSON-lines log. Writers in independent processes stay safe
// through an exclusive lock on a sidecar file held across the whole
// rotate-and-append sequence. The locking is cooperative: every
// writer must go through this package (or an equivalent flock of the
// same sidecar).
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf16"

	"agentlock/internal/errors"
)

const (
	// DefaultMaxBytes is the rotation threshold for the live file.
	DefaultMaxBytes int64 = 2 * 1024 * 1024
	// DefaultKeep is how many rotated files are retained.
	DefaultKeep = 3
)

// Entry is one immutable audit record. Field order matches the
// on-disk key order.
type Entry struct {
	Timestamp    string   `json:"timestamp"`
	Command      []string `json:"command"`
	CommandText  string   `json:"command_text"`
	Cwd          string   `json:"cwd"`
	Executed     bool     `json:"executed"`
	Reason       string   `json:"reason"`
	ExitCode     int      `json:"exit_code"`
	BlockedPaths []string `json:"blocked_paths"`
}

// Timestamp returns the current UTC time at second precision in
// ISO-8601 form, the format used for Entry.Timestamp.
func Timestamp() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Log is an append-only audit log at a fixed path.
type Log struct {
	path     string
	maxBytes int64
	keep     int
}

// New returns a Log with the default rotation threshold and retention.
func New(path string) *Log {
	return &Log{path: path, maxBytes: DefaultMaxBytes, keep: DefaultKeep}
}

// NewWithRotation returns a Log with an explicit rotation threshold
// and retention count.
func NewWithRotation(path string, maxBytes int64, keep int) *Log {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Log{path: path, maxBytes: maxBytes, keep: keep}
}

// Path returns the live log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry as a single line. It acquires the sidecar
// lock, rotates if the live file reached the threshold, appends, and
// releases the lock on every exit path. I/O failures are returned,
// never swallowed: a decision that cannot be recorded must be visible
// to the caller.
func (l *Log) Append(entry Entry) error {
	line, err := encodeLine(entry)
	if err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to encode audit entry", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to create audit log directory", err)
	}

	lock, err := acquireLock(l.path + ".lock")
	if err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to lock audit log", err)
	}
	defer lock.release()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to open audit log", err)
	}
	// One Write call per entry so a record is never interleaved with
	// another writer's.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return errors.Wrap(errors.CodeAudit, "failed to append audit entry", err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to close audit log", err)
	}
	return nil
}

// rotateIfNeeded shifts numbered backups up by one and moves the live
// file to index 1 once it reaches the threshold. The oldest backup
// beyond the retention count is dropped.
func (l *Log) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to stat audit log", err)
	}
	if info.Size() < l.maxBytes {
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", l.path, l.keep)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.CodeAudit, "failed to drop oldest audit backup", err)
	}
	for i := l.keep - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, fmt.Sprintf("%s.%d", l.path, i+1)); err != nil {
			return errors.Wrap(errors.CodeAudit, "failed to shift audit backup", err)
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return errors.Wrap(errors.CodeAudit, "failed to rotate audit log", err)
	}
	return nil
}

// Tail reads the last n entries from the live file. Rotated backups
// are not consulted.
func (l *Log) Tail(n int) ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeAudit, "failed to read audit log", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, errors.Wrap(errors.CodeAudit, "corrupt audit entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// encodeLine marshals the entry as one ASCII-safe JSON line: every
// rune above 0x7F is written as a \u escape so the log survives
// transports that mangle non-ASCII bytes.
func encodeLine(entry Entry) ([]byte, error) {
	if entry.BlockedPaths == nil {
		entry.BlockedPaths = []string{}
	}
	if entry.Command == nil {
		entry.Command = []string{}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(raw) + 1)
	for _, r := range string(raw) {
		switch {
		case r < 0x80:
			buf.WriteByte(byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&buf, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&buf, `\u%04x`, r)
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
