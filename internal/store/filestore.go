package store

import (
	"os"
	"path/filepath"
	"strings"
)

// fileStore keeps one file per key under a fixed directory. A missing or
// unwritable directory turns every operation into a no-op; in-memory state
// upstream stays correct for the process lifetime.
type fileStore struct {
	dir string
}

func newFileStore(dir string) *fileStore {
	return &fileStore{dir: dir}
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

func (s *fileStore) get(key string) ([]byte, bool) {
	if s.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *fileStore) set(key string, value []byte) error {
	if s.dir == "" {
		return os.ErrNotExist
	}
	return os.WriteFile(s.path(key), value, 0o644)
}

func (s *fileStore) delete(key string) {
	if s.dir == "" {
		return
	}
	_ = os.Remove(s.path(key))
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
