// Package infra provides the file-backed implementation of the mapping
// Store port: a single JSON document, written atomically via a temp file
// and rename so a reload never observes a partially-written table.
package infra

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/predikt/arb-agent/business/mapping/domain"
)

// FileStore persists the mapping table as cross-platform-mapping.json.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the mapping table. A missing file is treated as an empty
// table rather than an error, since a fresh deployment has none yet.
func (s *FileStore) Load() ([]domain.MappingEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var table domain.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table.Entries, nil
}

// Save writes entries to a temp file in the same directory and renames it
// over the target path, so a crash mid-write never leaves a truncated or
// half-written mapping file for the next Reload to pick up.
func (s *FileStore) Save(entries []domain.MappingEntry) error {
	data, err := json.MarshalIndent(domain.Table{Entries: entries}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
