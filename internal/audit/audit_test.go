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

package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func testEntry(reason string) Entry {
	return Entry{
		Timestamp:   Timestamp(),
		Command:     []string{"cat", "/public/note.txt"},
		CommandText: "cat /public/note.txt",
		Cwd:         "/work",
		Executed:    true,
		Reason:      reason,
		ExitCode:    0,
	}
}

func countEntries(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return 0
	}
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("corrupt line in %s: %v", path, err)
		}
	}
	return len(lines)
}

func TestAppendWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := New(path)
	if err := log.Append(testEntry("executed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := log.Append(testEntry("blocked_by_policy")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := log.Tail(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Reason != "executed" || entries[1].Reason != "blocked_by_policy" {
		t.Fatalf("entries out of order: %+v", entries)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("expected sidecar lock file: %v", err)
	}
}

func TestAppendFixedKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	if err := New(path).Append(testEntry("executed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	line := string(data)
	keys := []string{"timestamp", "command", "command_text", "cwd", "executed", "reason", "exit_code", "blocked_paths"}
	last := -1
	for _, key := range keys {
		idx := strings.Index(line, `"`+key+`"`)
		if idx < 0 {
			t.Fatalf("missing key %q in %s", key, line)
		}
		if idx < last {
			t.Fatalf("key %q out of order in %s", key, line)
		}
		last = idx
	}
}

func TestAppendEncodesASCIIOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	entry := testEntry("executed")
	entry.Command = []string{"cat", "/home/josé/café.txt", "🔒"}
	if err := New(path).Append(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	for i, b := range data {
		if b >= 0x80 {
			t.Fatalf("non-ASCII byte 0x%02x at offset %d", b, i)
		}
	}
	var decoded Entry
	line := strings.TrimRight(string(data), "\n")
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("escaped line does not decode: %v", err)
	}
	if decoded.Command[1] != "/home/josé/café.txt" || decoded.Command[2] != "🔒" {
		t.Fatalf("round trip lost characters: %+v", decoded.Command)
	}
}

func TestAppendNilSlicesBecomeArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	if err := New(path).Append(Entry{Timestamp: Timestamp(), Reason: "dry_run"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "null") {
		t.Fatalf("expected empty arrays, got %s", data)
	}
}

func TestRotationKeepsEveryEntryAcrossOneRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	entry := testEntry("executed")
	line, err := encodeLine(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Threshold sized so the single rotation happens on the final
	// write: 19 entries fill the live file, the 20th rotates first.
	log := NewWithRotation(path, int64(len(line)*19), 2)
	for i := 0; i < 20; i++ {
		if err := log.Append(entry); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	if countEntries(t, path) != 1 {
		t.Fatalf("expected 1 entry in live file, got %d", countEntries(t, path))
	}
	if countEntries(t, path+".1") != 19 {
		t.Fatalf("expected 19 entries in backup, got %d", countEntries(t, path+".1"))
	}
}

func TestRotationShiftsAndDropsOldest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	// Pre-seed live and both backups with markers.
	for name, marker := range map[string]string{
		path:        "live",
		path + ".1": "backup1",
		path + ".2": "backup2",
	} {
		if err := os.WriteFile(name, []byte(marker+"\n"), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}

	log := NewWithRotation(path, 1, 2)
	if err := log.Append(testEntry("executed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data1, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("failed to read .1: %v", err)
	}
	if !strings.Contains(string(data1), "live") {
		t.Fatalf("expected old live file at .1, got %s", data1)
	}
	data2, err := os.ReadFile(path + ".2")
	if err != nil {
		t.Fatalf("failed to read .2: %v", err)
	}
	if !strings.Contains(string(data2), "backup1") {
		t.Fatalf("expected old .1 at .2, got %s", data2)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatal("expected no backup beyond retention count")
	}
	if countEntries(t, path) != 1 {
		t.Fatalf("expected fresh live file with 1 entry, got %d", countEntries(t, path))
	}
}

func TestRotationScenarioFilesExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewWithRotation(path, 120, 2)
	for i := 0; i < 20; i++ {
		entry := testEntry("executed")
		entry.CommandText = fmt.Sprintf("cat /public/note-%02d.txt", i)
		if err := log.Append(entry); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	for _, name := range []string{path, path + ".1", path + ".lock"} {
		if _, err := os.Stat(name); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := New(path)
	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := log.Append(testEntry("executed")); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append failed: %v", err)
	}
	if got := countEntries(t, path); got != writers*perWriter {
		t.Fatalf("expected %d intact entries, got %d", writers*perWriter, got)
	}
}

func TestTailLimitsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := New(path)
	for i := 0; i < 5; i++ {
		entry := testEntry("executed")
		entry.ExitCode = i
		if err := log.Append(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	entries, err := log.Tail(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].ExitCode != 3 || entries[1].ExitCode != 4 {
		t.Fatalf("unexpected tail: %+v", entries)
	}
}

func TestTailMissingFile(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "absent.log"))
	entries, err := log.Tail(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %v", entries)
	}
}
