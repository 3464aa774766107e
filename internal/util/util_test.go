// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("[backend]\nurl = \"http://localhost:3000\"\n")

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", content, data)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("Permissions = %o, want 600", info.Mode().Perm())
		}
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "2026", "chat.md")

	if err := AtomicWriteFile(path, []byte("# chat"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.json")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Temp files left behind: %d entries", len(entries))
	}
}

func TestAtomicWriteFile_TargetIsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	if err := os.Mkdir(target, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "x"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	if err := AtomicWriteFile(target, []byte("x"), 0600); err == nil {
		t.Fatal("expected error writing over a non-empty directory")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Temp file not removed after failure: %d entries", len(entries))
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newdir", "test.txt")

	if err := AtomicWriteFileWithDir(path, []byte("test"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

// =============================================================================
// TEXT TESTS
// =============================================================================

func TestNormalizePrompt(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  hello  ", "hello"},
		{"line one\r\nline two\r\n", "line one\nline two"},
		{"old mac\rline", "old mac\nline"},
		{"cafe\u0301", "caf\u00e9"},
		{"\n\t\n", ""},
	}

	for _, tc := range testCases {
		if got := NormalizePrompt(tc.input); got != tc.expected {
			t.Errorf("NormalizePrompt(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := OneLine("what is\n\n  RAG?\t"); got != "what is RAG?" {
		t.Errorf("OneLine = %q", got)
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		input    string
		width    int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"日本語テキスト", 6, "日..."},
		{"日本語", 6, "日本語"},
	}

	for _, tc := range testCases {
		got := TruncateWidth(tc.input, tc.width)
		if got != tc.expected {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.width, got, tc.expected)
		}
		if StringWidth(got) > tc.width {
			t.Errorf("TruncateWidth(%q, %d) width %d exceeds limit", tc.input, tc.width, StringWidth(got))
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		input    string
		max      int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
	}

	for _, tc := range testCases {
		if got := TruncateRunes(tc.input, tc.max); got != tc.expected {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.expected)
		}
	}
}

func TestPadRight(t *testing.T) {
	testCases := []struct {
		input string
		width int
	}{
		{"id", 8},
		{"a-very-long-conversation-id", 12},
		{"日本", 6},
	}

	for _, tc := range testCases {
		got := PadRight(tc.input, tc.width)
		if w := StringWidth(got); w != tc.width {
			t.Errorf("PadRight(%q, %d) width = %d (%q)", tc.input, tc.width, w, got)
		}
	}
}

func TestPlural(t *testing.T) {
	for n, want := range map[int]string{0: "files", 1: "file", 2: "files"} {
		if got := Plural(n, "file", "files"); got != want {
			t.Errorf("Plural(%d) = %q, want %q", n, got, want)
		}
	}
}
