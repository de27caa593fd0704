// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64) failed: %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("Len() = %d, want 64", buffer.Len())
	}
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("expected zero at index %d, got %d", index, value)
		}
	}

	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) should fail", size)
		}
	}
}

func TestNewFromBytes(t *testing.T) {
	source := []byte("npm_abcdefghijklmnop")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "npm_abcdefghijklmnop" {
		t.Errorf("String() = %q", got)
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d was not zeroed: got %d", index, value)
		}
	}

	if _, err := NewFromBytes(nil); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestBufferClose(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	copy(buffer.Bytes(), "this should be zeroed")

	if err := buffer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if buffer.data != nil {
		t.Error("expected data to be nil after Close")
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	for name, read := range map[string]func(){
		"Bytes":  func() { buffer.Bytes() },
		"String": func() { _ = buffer.String() },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic on %s() after Close", name)
				}
			}()
			read()
		}()
	}
}

func TestReadFile(t *testing.T) {
	directory := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: "AGE-SECRET-KEY-1ABC", want: "AGE-SECRET-KEY-1ABC"},
		{name: "surrounding whitespace", content: "  AGE-SECRET-KEY-1ABC\n", want: "AGE-SECRET-KEY-1ABC"},
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace only", content: " \n\t\n", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(directory, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatalf("writing test file: %v", err)
			}
			buffer, err := ReadFile(path)
			if test.wantErr {
				if err == nil {
					buffer.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			defer buffer.Close()
			if buffer.String() != test.want {
				t.Errorf("ReadFile = %q, want %q", buffer.String(), test.want)
			}
		})
	}

	if _, err := ReadFile(filepath.Join(directory, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
