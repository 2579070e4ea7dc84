package embed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoKeys means the credential file is missing or holds no usable keys.
var ErrNoKeys = errors.New("no API keys available")

// KeyFile manages a line-oriented credential file: one key per line, the
// first line is the current key. Invalid keys are removed and the file is
// rewritten atomically. Safe for concurrent use within a process.
type KeyFile struct {
	path string
	mu   sync.Mutex
}

// NewKeyFile creates a manager for the given file path.
func NewKeyFile(path string) *KeyFile {
	return &KeyFile{path: path}
}

// Current returns the first available key.
func (k *KeyFile) Current() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	keys, err := k.read()
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNoKeys
	}
	return keys[0], nil
}

// Invalidate removes a rejected key from the file. Returns true when the
// key was present and removed.
func (k *KeyFile) Invalidate(key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	keys, err := k.read()
	if err != nil {
		return false, err
	}

	kept := keys[:0]
	removed := false
	for _, existing := range keys {
		if existing == key {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return false, nil
	}

	if err := k.write(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of keys currently on file.
func (k *KeyFile) Count() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	keys, err := k.read()
	if err != nil {
		return 0
	}
	return len(keys)
}

func (k *KeyFile) read() ([]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoKeys, k.path)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		if key := strings.TrimSpace(line); key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// write replaces the file contents via a temp file and rename so a crash
// never leaves a truncated key file behind.
func (k *KeyFile) write(keys []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(k.path), ".keys-*")
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strings.Join(keys, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write key file: %w", err)
	}

	if err := os.Rename(tmpName, k.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}
