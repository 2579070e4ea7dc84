package embed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeKeyFile(t *testing.T, lines string) *KeyFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return NewKeyFile(path)
}

func TestKeyFile_Current(t *testing.T) {
	k := writeKeyFile(t, "sk-first\nsk-second\nsk-third\n")

	key, err := k.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if key != "sk-first" {
		t.Errorf("expected first key, got %q", key)
	}
}

func TestKeyFile_CurrentSkipsBlankLines(t *testing.T) {
	k := writeKeyFile(t, "\n\n  sk-only  \n\n")

	key, err := k.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if key != "sk-only" {
		t.Errorf("expected trimmed key, got %q", key)
	}
}

func TestKeyFile_Invalidate(t *testing.T) {
	k := writeKeyFile(t, "sk-bad\nsk-good\n")

	removed, err := k.Invalidate("sk-bad")
	if err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}
	if !removed {
		t.Error("expected key to be removed")
	}

	key, err := k.Current()
	if err != nil {
		t.Fatalf("Current() after rotation failed: %v", err)
	}
	if key != "sk-good" {
		t.Errorf("expected next key after rotation, got %q", key)
	}
	if k.Count() != 1 {
		t.Errorf("expected 1 key on file, got %d", k.Count())
	}
}

func TestKeyFile_InvalidateMissingKey(t *testing.T) {
	k := writeKeyFile(t, "sk-present\n")

	removed, err := k.Invalidate("sk-absent")
	if err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}
	if removed {
		t.Error("removing an absent key should report false")
	}
	if k.Count() != 1 {
		t.Errorf("file should be untouched, got %d keys", k.Count())
	}
}

func TestKeyFile_Exhausted(t *testing.T) {
	k := writeKeyFile(t, "sk-last\n")

	if _, err := k.Invalidate("sk-last"); err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}

	_, err := k.Current()
	if !errors.Is(err, ErrNoKeys) {
		t.Errorf("expected ErrNoKeys, got %v", err)
	}
}

func TestKeyFile_MissingFile(t *testing.T) {
	k := NewKeyFile(filepath.Join(t.TempDir(), "nope.txt"))

	_, err := k.Current()
	if !errors.Is(err, ErrNoKeys) {
		t.Errorf("expected ErrNoKeys for missing file, got %v", err)
	}
}
